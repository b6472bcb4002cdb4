package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmproxy/capture-proxy/internal/vendor"
)

// Normalize builds a Conversation from one finished interaction: the
// resolved auth type, the original request body, and the fully
// assembled response text produced by a vendor parser (§4.3).
func Normalize(authType vendor.AuthType, requestBody []byte, responseText string) (Conversation, error) {
	arc, err := extractArchive(authType, requestBody)
	if err != nil {
		return Conversation{}, err
	}

	var turns []Turn
	for _, msg := range arc.messages {
		t, err := turnsForMessage(msg)
		if err != nil {
			return Conversation{}, fmt.Errorf("normalizing message with role %q: %w", msg.Role, err)
		}
		if t.system != "" {
			if arc.system == "" {
				arc.system = t.system
			} else {
				arc.system = strings.TrimSpace(arc.system + "\n" + t.system)
			}
		}
		turns = append(turns, t.turns...)
	}

	turns, rewrote := normalizeConsecutiveHumanTurns(turns)

	responseTurns, err := turnsForResponse(responseText)
	if err != nil {
		return Conversation{}, err
	}
	turns = append(turns, responseTurns...)

	conv := Conversation{
		System:          arc.system,
		Tools:           toolsToText(arc.toolsRaw),
		Conversations:   turns,
		NormalizedRoles: rewrote,
	}
	if rewrote {
		conv.RawRequestBody = string(requestBody)
	}
	return conv, nil
}

type messageTurns struct {
	turns  []Turn
	system string
}

// turnsForMessage converts one request message into zero or more
// Turns, per the role mapping and content extraction rules of §4.3.
func turnsForMessage(msg rawMessage) (messageTurns, error) {
	switch msg.Role {
	case "system":
		return messageTurns{system: contentToString(msg.Content)}, nil

	case "tool", "function", "tool_response":
		text := strings.TrimSpace(flattenToolContent(msg.Content))
		if text == "" {
			return messageTurns{}, nil
		}
		return messageTurns{turns: []Turn{{From: "observation", Value: text}}}, nil

	case "function_call":
		value := contentToString(msg.Content)
		return messageTurns{turns: []Turn{{From: "function_call", Value: value}}}, nil

	default:
		role := "gpt"
		if msg.Role == "user" {
			role = "human"
		}

		text, toolCalls, toolResults, err := extractContentParts(msg.Content)
		if err != nil {
			return messageTurns{}, err
		}

		var turns []Turn
		if strings.TrimSpace(text) != "" {
			turns = append(turns, Turn{From: role, Value: strings.TrimSpace(text)})
		}

		for _, tc := range msg.ToolCalls {
			encoded, err := json.Marshal(tc)
			if err != nil {
				return messageTurns{}, fmt.Errorf("encoding tool call: %w", err)
			}
			turns = append(turns, Turn{From: "function_call", Value: string(encoded)})
			if tc.Output != "" {
				turns = append(turns, Turn{From: "observation", Value: tc.Output})
			}
		}

		for _, tc := range toolCalls {
			encoded, err := json.Marshal(tc)
			if err != nil {
				return messageTurns{}, fmt.Errorf("encoding anthropic tool_use: %w", err)
			}
			turns = append(turns, Turn{From: "function_call", Value: string(encoded)})
		}

		for _, tr := range toolResults {
			turns = append(turns, Turn{From: "observation", Value: tr})
		}

		return messageTurns{turns: turns}, nil
	}
}

// extractContentParts handles a message's `content`, which may be a
// plain string or an array of typed parts (§4.3 "Content extraction").
// Anthropic tool_use parts become synthesized function_call turns;
// tool_result parts become observation turns.
func extractContentParts(raw json.RawMessage) (text string, toolCalls []openAIToolCall, toolResults []string, err error) {
	if len(raw) == 0 {
		return "", nil, nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil, nil, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var textParts []string
		for _, p := range parts {
			switch p.Type {
			case "text":
				textParts = append(textParts, p.Text)
			case "tool_use":
				input := "{}"
				if len(p.Input) > 0 {
					input = string(p.Input)
				}
				tc := openAIToolCall{ID: p.ID, Type: "function"}
				tc.Function.Name = p.Name
				tc.Function.Arguments = input
				toolCalls = append(toolCalls, tc)
			case "tool_result":
				toolResults = append(toolResults, contentToString(p.Content))
			default:
				textParts = append(textParts, p.Type)
			}
		}
		return strings.Join(textParts, "\n"), toolCalls, toolResults, nil
	}

	return contentToString(raw), nil, nil, nil
}

// flattenToolContent mirrors extractContentParts' text handling for
// tool/function role messages, which only ever carry text.
func flattenToolContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out []string
		for _, p := range parts {
			out = append(out, p.Text)
		}
		return strings.Join(out, "\n")
	}
	return contentToString(raw)
}

// contentToString coerces an arbitrary JSON value to its string form,
// matching the exporter's `str(content)` fallback for non-string,
// non-array content.
func contentToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// turnsForResponse implements the assistant-side half of §4.3: splice
// out any Anthropic tool-call marker, emit a gpt turn for remaining
// prose (skipped for a function-call-only turn), then one
// function_call turn per extracted call.
func turnsForResponse(responseText string) ([]Turn, error) {
	cleaned, calls := spliceAnthropicToolCalls(strings.TrimSpace(responseText))

	var turns []Turn
	if strings.TrimSpace(cleaned) != "" {
		turns = append(turns, Turn{From: "gpt", Value: strings.TrimSpace(cleaned)})
	}
	for _, c := range calls {
		encoded, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encoding spliced anthropic tool call: %w", err)
		}
		turns = append(turns, Turn{From: "function_call", Value: string(encoded)})
	}
	return turns, nil
}

// FunctionCallOnly reports whether the last role-bearing turn of the
// conversation is a function_call, the exporter's definition of
// "function-call-only".
func FunctionCallOnly(conv Conversation) bool {
	if len(conv.Conversations) == 0 {
		return false
	}
	return conv.Conversations[len(conv.Conversations)-1].From == "function_call"
}
