// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonPattern = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

// ExtractJSON pulls the first JSON object or array out of free-form
// collaborator text. Models often wrap JSON in prose or code fences; the
// payload between the outermost braces is what we want.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty response from collaborator")
	}

	if text[0] == '{' || text[0] == '[' {
		if json.Valid([]byte(text)) {
			return json.RawMessage(text), nil
		}
	}

	match := jsonPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no JSON found in collaborator response")
	}
	if !json.Valid([]byte(match)) {
		return nil, fmt.Errorf("collaborator response contains invalid JSON")
	}
	return json.RawMessage(match), nil
}
