package normalizer

import "strings"

// looksLikeAssistantReply implements the §4.3 "Role normalization"
// heuristic: a human turn "looks like" an AI reply if it is long, has
// markdown cues, or has an implausibly low question-mark density for
// something a user typed.
func looksLikeAssistantReply(text string) bool {
	if len(text) >= 400 {
		return true
	}
	for _, cue := range []string{"###", "**", "<think>"} {
		if strings.Contains(text, cue) {
			return true
		}
	}
	if len(text) == 0 {
		return false
	}
	questionMarks := strings.Count(text, "?")
	ratio := float64(questionMarks) / float64(len(text))
	return ratio < 0.002
}

// normalizeConsecutiveHumanTurns re-labels the second of two
// consecutive human turns to gpt when it looks like an AI reply,
// returning whether any rewrite happened so the caller can set
// normalized_roles (§4.3).
func normalizeConsecutiveHumanTurns(turns []Turn) ([]Turn, bool) {
	rewrote := false
	for i := 1; i < len(turns); i++ {
		if turns[i-1].From == "human" && turns[i].From == "human" && looksLikeAssistantReply(turns[i].Value) {
			turns[i].From = "gpt"
			rewrote = true
		}
	}
	return turns, rewrote
}
