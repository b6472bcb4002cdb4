package asynclog

import (
	"regexp"

	"github.com/llmproxy/capture-proxy/internal/config"
	"github.com/sirupsen/logrus"
)

// ProbeFilterFormatter wraps a delegate logrus.Formatter and drops
// entries whose formatted message matches a probe pattern, the same
// filter-on-formatted-message approach as the original
// ProbeRequestFilter, re-expressed as a Formatter since logrus Hooks
// run too late to cancel a write — only the Formatter stage can turn
// an entry into zero bytes.
type ProbeFilterFormatter struct {
	Delegate logrus.Formatter
	Patterns func() config.CompiledPatterns
}

// Format implements logrus.Formatter. A suppressed entry is formatted
// to an empty byte slice, which logrus then writes as a no-op.
func (f *ProbeFilterFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	pat := f.Patterns()
	if matchesAny(pat.Probe, entry.Message) {
		return nil, nil
	}
	if ip, ok := entry.Data["remote_ip"]; ok {
		if s, ok := ip.(string); ok && matchesAny(pat.ProbeIP, s) {
			return nil, nil
		}
	}
	return f.Delegate.Format(entry)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
