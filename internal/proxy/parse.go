package proxy

import (
	"fmt"

	"github.com/llmproxy/capture-proxy/internal/vendor"
	"github.com/llmproxy/capture-proxy/internal/vendor/anthropic"
	"github.com/llmproxy/capture-proxy/internal/vendor/google"
	"github.com/llmproxy/capture-proxy/internal/vendor/openai"
)

// parseIncremental dispatches one SSE/stream line to the parser for
// authType (§9 "Vendor dispatch" — tagged variant, no runtime type
// introspection beyond this one switch).
func parseIncremental(authType vendor.AuthType, line string, acc *vendor.Accumulator) error {
	switch authType {
	case vendor.AuthAnthropic:
		return anthropic.ParseIncremental(line, acc)
	case vendor.AuthGoogle:
		return google.ParseIncremental(line, acc)
	default:
		return openai.ParseIncremental(line, acc)
	}
}

// parseFinal dispatches a non-streaming response body to the parser
// for authType.
func parseFinal(authType vendor.AuthType, body []byte, acc *vendor.Accumulator) error {
	switch authType {
	case vendor.AuthAnthropic:
		return anthropic.ParseFinal(body, acc)
	case vendor.AuthGoogle:
		return google.ParseFinal(body, acc)
	default:
		return openai.ParseFinal(body, acc)
	}
}

// finalizeStream runs any end-of-stream accumulator work the dialect
// needs once the last incremental event has been applied. Anthropic
// splices completed tool calls into the visible text (§4.4
// "Finalization"); OpenAI and Google streams collect reasoning
// separately, so it is spliced in front of the visible text as a
// "<think>\n...\n</think>\n\n" block, the same shape openai.ParseFinal
// produces.
func finalizeStream(authType vendor.AuthType, acc *vendor.Accumulator) error {
	if authType != vendor.AuthAnthropic {
		if acc.ReasoningText != "" {
			acc.VisibleText = fmt.Sprintf("<think>\n%s\n</think>\n\n%s", acc.ReasoningText, acc.VisibleText)
		}
		return nil
	}
	if err := anthropic.Finalize(acc); err != nil {
		return fmt.Errorf("finalizing anthropic stream: %w", err)
	}
	return nil
}
