// Package normalizer converts heterogeneous vendor request/response
// bodies into the extended ShareGPT Conversation record persisted by
// the store (§3 "Conversation", §4.3, §4.5).
package normalizer

import "encoding/json"

// Turn is one message in a Conversation. From is one of
// human/gpt/function_call/observation/system.
type Turn struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

// Conversation is the persisted, extended-ShareGPT shape of one
// interaction (§3 "Conversation").
type Conversation struct {
	System        string `json:"system"`
	Tools         string `json:"tools"`
	Conversations []Turn `json:"conversations"`

	// NormalizedRoles and RawRequestBody are set only when the
	// role-normalization heuristic (§4.3) rewrote a turn, so the
	// rewrite is auditable against the untouched source.
	NormalizedRoles bool   `json:"normalized_roles,omitempty"`
	RawRequestBody  string `json:"raw_request_body,omitempty"`
}

// contentPart is one element of an Anthropic-style content array:
// {"type": "text"|"tool_use"|"tool_result", ...}.
type contentPart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// openAIToolCall is the OpenAI `message.tool_calls[]` shape. Output is
// a non-standard extension some capture harnesses attach post-hoc
// (tool result already joined to the call); when present it is
// emitted as a matching observation turn (mirrors the original
// exporter's handling of `tool_call["output"]`).
type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
	Output string `json:"output,omitempty"`
}

// rawMessage is one entry of a request's `messages` array (OpenAI /
// Anthropic shape) or a value synthesized from Google's
// systemInstruction/contents by extractArchive.
type rawMessage struct {
	Role      string           `json:"role"`
	Content   json.RawMessage  `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}
