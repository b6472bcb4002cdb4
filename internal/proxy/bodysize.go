package proxy

import (
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/llmproxy/capture-proxy/internal/vendor"
)

// MaxTextBudget is the absolute character budget for a request's
// conversational text before forwarding (§4.1 "Body size preflight").
const MaxTextBudget = 8_000_000

// ErrBodyTooLarge is returned by CheckBodySize when the budget is exceeded.
type ErrBodyTooLarge struct {
	Length int
	Budget int
}

func (e *ErrBodyTooLarge) Error() string {
	return fmt.Sprintf("request text length %d exceeds budget %d", e.Length, e.Budget)
}

// CheckBodySize scans the total text length of `messages[].content`
// (OpenAI/Anthropic) or `contents[].parts[].text` (Google) and rejects
// bodies whose combined text exceeds MaxTextBudget (§4.1).
func CheckBodySize(authType vendor.AuthType, body []byte) error {
	total := 0

	if authType == vendor.AuthGoogle {
		gjson.GetBytes(body, "contents").ForEach(func(_, content gjson.Result) bool {
			content.Get("parts").ForEach(func(_, part gjson.Result) bool {
				total += utf8.RuneCountInString(part.Get("text").String())
				return true
			})
			return true
		})
	} else {
		gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
			content := msg.Get("content")
			if content.IsArray() {
				content.ForEach(func(_, part gjson.Result) bool {
					total += utf8.RuneCountInString(part.Get("text").String())
					return true
				})
			} else {
				total += utf8.RuneCountInString(content.String())
			}
			return true
		})
	}

	if total > MaxTextBudget {
		return &ErrBodyTooLarge{Length: total, Budget: MaxTextBudget}
	}
	return nil
}
