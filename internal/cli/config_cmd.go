// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection and editing.
//
// Command: config
// Short:   Inspect and edit configuration
// Aliases: cfg
//
// Examples:
//   skiff config                          Show the effective configuration
//   skiff config path                     Print the config file path
//   skiff config get cache.max_size       Print one value
//   skiff config set rate_limit.ceiling 30
//   skiff config keys                     List settable keys
//   skiff config init                     Write a default config file
//
// Values shown always have the API key redacted; set values are
// validated before saving.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/skiff/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args)
	case "path":
		return configPath(args)
	case "get":
		return configGet(args)
	case "set":
		return configSet(args)
	case "keys":
		return configKeys(args)
	case "init":
		return configInit(args)
	default:
		return usageErrorf("unknown config subcommand %q; expected show, path, get, set, keys or init", args.Subcommand)
	}
}

// effectiveConfigPath resolves which file the config comes from:
// explicit flag first, then whichever of the TOML or JSON files
// exists, then the TOML default.
func effectiveConfigPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}

	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}

	jsonPath, err := config.ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}

	return tomlPath, nil
}

// configShow prints the effective configuration, redacted.
func configShow(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	if args.JSON {
		redacted := cfg.Clone()
		if redacted.Bridge.APIKey != "" {
			redacted.Bridge.APIKey = "[redacted]"
		}
		return NewJSONResponse("config", redacted).Print()
	}

	path, err := effectiveConfigPath(args)
	if err == nil {
		fmt.Println(dimStyle.Render("# " + path))
	}
	fmt.Println(cfg.String())
	return nil
}

// configPath prints the resolved config file path.
func configPath(args Args) error {
	path, err := effectiveConfigPath(args)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config", map[string]string{"path": path}).Print()
	}

	fmt.Println(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println(dimStyle.Render("(not created yet; run: skiff config init)"))
	}
	return nil
}

// configGet prints a single configuration value by dotted key.
func configGet(args Args) error {
	if args.ConfigKey == "" {
		return usageErrorf("get requires a key, e.g. skiff config get cache.max_size")
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	value, err := cfg.Get(args.ConfigKey)
	if err != nil {
		return usageErrorf("%v", err)
	}

	if strings.HasSuffix(args.ConfigKey, "api_key") {
		value = "[redacted]"
	}

	if args.JSON {
		return NewJSONResponse("config", map[string]interface{}{args.ConfigKey: value}).Print()
	}
	fmt.Println(value)
	return nil
}

// configSet updates a single value, validates the result and saves.
func configSet(args Args) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return usageErrorf("set requires a key and a value, e.g. skiff config set rate_limit.ceiling 30")
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return usageErrorf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return usageErrorf("rejected: %v", err)
	}

	if err := saveTo(cfg, args); err != nil {
		return err
	}

	fmt.Printf("%s = %s\n", args.ConfigKey, args.ConfigVal)
	return nil
}

// saveTo writes the config back to where it was loaded from.
func saveTo(cfg *config.Config, args Args) error {
	if args.ConfigPath == "" {
		return config.Save(cfg)
	}
	if strings.HasSuffix(args.ConfigPath, ".json") {
		return config.SaveJSON(cfg, args.ConfigPath)
	}
	return config.SaveTOML(cfg, args.ConfigPath)
}

// configKeys lists the dotted keys accepted by get and set.
func configKeys(args Args) error {
	keys := config.GetAllKeys()

	if args.JSON {
		return NewJSONResponse("config", map[string][]string{"keys": keys}).Print()
	}

	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

// configInit writes a default config file for editing.
func configInit(args Args) error {
	parser := NewArgParser(args.Raw)

	path := args.ConfigPath
	if path == "" {
		var err error
		path, err = config.ConfigPathTOML()
		if err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !parser.BoolFlag("force") {
		return usageErrorf("%s already exists; re-run with --force to overwrite", path)
	}

	cfg := config.Default()
	if err := saveTo(cfg, Args{ConfigPath: path}); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", path)
	fmt.Println(dimStyle.Render("set bridge.api_key (or SKIFF_API_KEY) before first use"))
	return nil
}
