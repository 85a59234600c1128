// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Configured model listing.
//
// Command: models
// Short:   List configured models
//
// Examples:
//   skiff models          List models with the default marked
//   skiff models --json   Listing in JSON format

package cli

import (
	"fmt"
)

// HandleModels handles the "models" command.
func HandleModels(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	if args.JSON {
		data := ModelsData{Default: cfg.DefaultModel}
		for _, m := range cfg.Models {
			data.Models = append(data.Models, ModelEntry{
				Name:      m.Name,
				ID:        m.ID,
				MaxTokens: m.MaxTokens,
				Default:   m.Name == cfg.DefaultModel,
			})
		}
		return NewJSONResponse("models", data).Print()
	}

	if len(cfg.Models) == 0 {
		fmt.Println("no models configured; run: skiff config init")
		return nil
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("  %-12s %-40s %10s", "NAME", "ID", "MAX TOKENS")))
	for _, m := range cfg.Models {
		marker := " "
		if m.Name == cfg.DefaultModel {
			marker = "*"
		}
		maxTokens := "-"
		if m.MaxTokens > 0 {
			maxTokens = fmt.Sprintf("%d", m.MaxTokens)
		}
		fmt.Printf("%s %-12s %-40s %10s\n", marker, m.Name, m.ID, maxTokens)
	}
	fmt.Println()
	fmt.Println(dimStyle.Render("* default model; switch with -m NAME or config set default_model NAME"))

	return nil
}
