// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/skiff/internal/util"
)

// NormalizeText extracts the completion text from a raw bridge payload.
//
// Accepted shapes, in probe order:
//   - a bare string: either plain text on the wire or a JSON string
//   - an object with a string "text" field
//   - an object with a "content" field holding a string, or an array of
//     blocks whose string elements and "text" fields are concatenated
//
// Everything else (bare numbers, booleans, arrays, objects without the
// known fields) is an invalid-response-shape error. Shape is what is
// validated, not content: an empty text field normalizes to "".
func NormalizeText(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", newError(ErrTypeInvalidResponse, "empty response from bridge", nil)
	}

	if !gjson.ValidBytes(trimmed) {
		// Plain text that never went through a JSON encoder.
		return string(trimmed), nil
	}

	r := gjson.ParseBytes(trimmed)
	switch {
	case r.Type == gjson.String:
		return r.String(), nil

	case r.IsObject():
		if text := r.Get("text"); text.Exists() && text.Type == gjson.String {
			return text.String(), nil
		}
		if content := r.Get("content"); content.Exists() {
			if content.Type == gjson.String {
				return content.String(), nil
			}
			if content.IsArray() {
				if s, ok := joinBlocks(content); ok {
					return s, nil
				}
			}
		}
	}

	return "", newError(ErrTypeInvalidResponse,
		"unrecognized response shape: "+util.TruncateRunes(string(trimmed), 120), nil)
}

// NormalizeFragment extracts the text carried by one stream chunk.
// Chunks use the same wire shapes as full responses, so the rules are
// identical; the name marks call sites that consume fragments.
func NormalizeFragment(raw []byte) (string, error) {
	return NormalizeText(raw)
}

// joinBlocks concatenates a provider block list. Elements contribute
// when they are strings or objects with a string "text" field; ok is
// false when not a single element contributed.
func joinBlocks(content gjson.Result) (string, bool) {
	var b strings.Builder
	contributed := false
	for _, el := range content.Array() {
		switch {
		case el.Type == gjson.String:
			b.WriteString(el.String())
			contributed = true
		case el.IsObject():
			if text := el.Get("text"); text.Exists() && text.Type == gjson.String {
				b.WriteString(text.String())
				contributed = true
			}
		}
	}
	return b.String(), contributed
}
