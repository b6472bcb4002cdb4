package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmproxy/capture-proxy/internal/vendor"
)

// archive is the pre-Conversation extraction result: the system prompt
// text, the raw `tools` value (if any), and the ordered message list
// (§4.5 "Archive-message extraction").
type archive struct {
	system     string
	toolsRaw   json.RawMessage
	messages   []rawMessage
}

// extractArchive builds the user-visible prompt list from the
// original request body before persistence (§4.5). Google requests are
// reshaped from systemInstruction/contents into the common rawMessage
// form; other dialects use the request's `messages` array as-is.
func extractArchive(authType vendor.AuthType, requestBody []byte) (archive, error) {
	var top struct {
		System json.RawMessage  `json:"system"`
		Tools  json.RawMessage  `json:"tools"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		Messages []rawMessage `json:"messages"`
	}
	if err := json.Unmarshal(requestBody, &top); err != nil {
		return archive{}, fmt.Errorf("extracting archive messages: %w", err)
	}

	if authType == vendor.AuthGoogle {
		var system string
		if top.SystemInstruction != nil {
			var parts []string
			for _, p := range top.SystemInstruction.Parts {
				parts = append(parts, p.Text)
			}
			system = strings.Join(parts, "\n")
		}

		messages := make([]rawMessage, 0, len(top.Contents))
		for _, c := range top.Contents {
			role := mapGoogleRole(c.Role)
			var parts []string
			for _, p := range c.Parts {
				parts = append(parts, p.Text)
			}
			content, _ := json.Marshal(strings.Join(parts, "\n"))
			messages = append(messages, rawMessage{Role: role, Content: content})
		}

		return archive{system: system, toolsRaw: top.Tools, messages: messages}, nil
	}

	system := extractSystemText(top.System)
	return archive{system: system, toolsRaw: top.Tools, messages: top.Messages}, nil
}

// mapGoogleRole implements the Google role map in §4.5:
// user→user, model→assistant, system→system, default user.
func mapGoogleRole(role string) string {
	switch role {
	case "model":
		return "assistant"
	case "system":
		return "system"
	case "user":
		return "user"
	default:
		return "user"
	}
}

// extractSystemText handles the `system` field's two observed shapes:
// a plain string, or an array of {"text": ...}/string parts joined by
// newline (§4.3 "The system field also absorbs...").
func extractSystemText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out []string
		for _, p := range parts {
			var item struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(p, &item); err == nil && item.Text != "" {
				out = append(out, item.Text)
				continue
			}
			var str string
			if err := json.Unmarshal(p, &str); err == nil {
				out = append(out, str)
			}
		}
		return strings.Join(out, "\n")
	}

	return ""
}

// toolsToText serializes the request's `tools` field to JSON text,
// defaulting to "[]" when absent (§4.3 "Tools field").
func toolsToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	return string(raw)
}
