package report

import (
	"regexp"
	"strings"
)

var (
	reBearer   = regexp.MustCompile(`(?i)\b(bearer\s+)([a-z0-9\-\._~\+\/]+=*)`)
	reApiKeyKV = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|token|secret|authorization)\s*[:=]\s*([^\s,;]+)`)
	reCtrl     = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// SanitizeFinding strips credential material and control bytes from the
// human-readable fields before they enter reports and the evidence bundle.
// The raw payload is left alone: it is the verifier's verbatim output and
// altering it would break artifact hash reproducibility.
func SanitizeFinding(f Finding) Finding {
	f.Message = SanitizeText(f.Message)
	return f
}

func SanitizeText(s string) string {
	out := reCtrl.ReplaceAllString(s, "")
	out = reBearer.ReplaceAllString(out, "${1}<redacted>")
	out = reApiKeyKV.ReplaceAllString(out, "${1}=<redacted>")
	return strings.TrimSpace(out)
}
