package classify

import (
	"regexp"
	"unicode/utf8"
)

const maxUserMessageLen = 500

var (
	// Long opaque runs are almost always tokens or signatures.
	tokenRunRe = regexp.MustCompile(`[A-Za-z0-9_\-]{16,}`)

	// JSON-embedded access tokens, e.g. "access_token":"EAAB..."
	jsonTokenRe = regexp.MustCompile(`"(access_token|refresh_token)"\s*:\s*"[^"]*"`)
)

// Redact scrubs provider internals and secrets from a message and caps its
// length so it is safe for logs and the UI.
func Redact(s string) string {
	s = jsonTokenRe.ReplaceAllString(s, `"$1":"[redacted]"`)
	s = tokenRunRe.ReplaceAllString(s, "[redacted]")
	if len(s) > maxUserMessageLen {
		// Back up so the cut never splits a multi-byte rune.
		cut := maxUserMessageLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
