// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Saved conversation management.
//
// Command: history
// Short:   Manage saved conversations
// Aliases: hist
//
// Examples:
//   skiff history                       List saved conversations
//   skiff history show 1                Show the most recent conversation
//   skiff history search "memory"       Search summaries and content
//   skiff history delete 3 --confirm    Delete one conversation
//   skiff history clear --confirm       Delete everything
//
// Conversations are addressed by listing position (1 is most recent)
// or by full ID.

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/skiff/internal/history"
)

// HandleHistory handles the "history" command.
func HandleHistory(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	dir, err := cfg.HistoryDir()
	if err != nil {
		return err
	}
	store, err := history.New(dir, cfg.History.MaxConversations)
	if err != nil {
		return err
	}

	parser := NewArgParser(args.Raw)
	switch parser.Subcommand() {
	case "", "list", "ls":
		return historyList(store, args)
	case "show":
		return historyShow(store, parser, args)
	case "search":
		return historySearch(store, parser, args)
	case "delete", "rm":
		return historyDelete(store, parser)
	case "clear":
		return historyClear(store, parser)
	default:
		return usageErrorf("unknown history subcommand %q; expected list, show, search, delete or clear", parser.Subcommand())
	}
}

// resolveConversation loads by listing position (1-based) or by ID.
func resolveConversation(store *history.Store, ref string) (*history.Conversation, error) {
	if ref == "" {
		return nil, usageErrorf("missing conversation reference; use a listing position or an ID from: skiff history list")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 {
			return nil, usageErrorf("conversation positions start at 1")
		}
		return store.LoadByIndex(n - 1)
	}
	return store.Load(ref)
}

// historyList prints the conversation listing, most recent first.
func historyList(store *history.Store, args Args) error {
	metas, err := store.List()
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("history", HistoryListData{
			Conversations: metas,
			Count:         len(metas),
		}).Print()
	}

	printMetaTable(metas)
	return nil
}

// historySearch prints conversations matching the query.
func historySearch(store *history.Store, parser *ArgParser, args Args) error {
	query := strings.Join(parser.PositionalFrom(1), " ")
	if query == "" {
		return usageErrorf(`search requires a query, e.g. skiff history search "virtual memory"`)
	}

	metas, err := store.Search(query)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("history", HistoryListData{
			Conversations: metas,
			Count:         len(metas),
		}).Print()
	}

	if len(metas) == 0 {
		fmt.Printf("no conversations match %q\n", query)
		return nil
	}
	printMetaTable(metas)
	return nil
}

// printMetaTable renders a conversation listing.
func printMetaTable(metas []history.Meta) {
	if len(metas) == 0 {
		fmt.Println("no saved conversations")
		return
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("  %3s  %-16s  %-10s  %4s  %s", "#", "UPDATED", "MODEL", "MSGS", "PREVIEW")))
	for i, m := range metas {
		fmt.Printf("  %3d  %-16s  %-10s  %4d  %s\n",
			i+1,
			m.UpdatedAt.Format("2006-01-02 15:04"),
			truncate(m.Model, 10),
			m.MessageCount,
			truncate(m.Preview, 40))
	}
}

// historyShow prints one conversation in full.
func historyShow(store *history.Store, parser *ArgParser, args Args) error {
	conv, err := resolveConversation(store, parser.Positional(1))
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("history", conv).Print()
	}

	fmt.Println(titleStyle.Render(conv.Summary))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%s · %s · %d messages",
		conv.Model, conv.UpdatedAt.Format("2006-01-02 15:04"), len(conv.Messages))))
	fmt.Println()

	for _, msg := range conv.Messages {
		switch msg.Role {
		case history.RoleUser:
			fmt.Println(successStyle.Render("You:"))
			fmt.Println(msg.Content)
		case history.RoleAssistant:
			label := "Assistant:"
			if msg.Offline {
				label = "Assistant (offline):"
			}
			fmt.Println(titleStyle.Render(label))
			displayResponse(msg.Content)
		case history.RoleSystem:
			fmt.Println(dimStyle.Render("System: " + msg.Content))
		}
		fmt.Println()
	}

	return nil
}

// historyDelete removes one conversation. Destructive, so --confirm is
// required.
func historyDelete(store *history.Store, parser *ArgParser) error {
	if !parser.BoolFlag("confirm") {
		return usageErrorf("delete is permanent; re-run with --confirm")
	}

	conv, err := resolveConversation(store, parser.Positional(1))
	if err != nil {
		return err
	}
	if err := store.Delete(conv.ID); err != nil {
		return err
	}

	fmt.Printf("deleted %s\n", truncate(conv.Summary, 50))
	return nil
}

// historyClear removes every conversation. Destructive, so --confirm
// is required.
func historyClear(store *history.Store, parser *ArgParser) error {
	if !parser.BoolFlag("confirm") {
		return usageErrorf("clear deletes all conversations; re-run with --confirm")
	}

	n, err := store.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d conversation(s)\n", n)
	return nil
}
