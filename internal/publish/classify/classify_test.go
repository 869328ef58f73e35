package classify

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/venuepost/publisher/internal/core/domain"
)

type statusErr struct {
	status int
	msg    string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) HTTPStatus() int { return e.status }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		platform domain.Platform
		expect   Code
	}{
		{"401", &statusErr{401, "bad credentials"}, domain.PlatformFacebook, CodeUnauthorized},
		{"403", &statusErr{403, "no"}, domain.PlatformFacebook, CodeForbidden},
		{"404", &statusErr{404, "missing page"}, domain.PlatformFacebook, CodeNotFound},
		{"429", &statusErr{429, "too many calls"}, domain.PlatformInstagram, CodeRateLimited},
		{"expired token", errors.New("Error validating access token: session has expired"), domain.PlatformFacebook, CodeTokenExpired},
		{"missing permission", errors.New("(#200) missing permission pages_manage_posts"), domain.PlatformFacebook, CodeMissingScope},
		{"instagram image required", errors.New("this media type requires an image_url"), domain.PlatformInstagram, CodeImageRequired},
		{"network vocabulary", errors.New("dial tcp: connection reset by peer"), domain.PlatformGoogle, CodeNetworkError},
		{"500", &statusErr{500, "internal"}, domain.PlatformFacebook, CodeServerError},
		{"503", &statusErr{503, "unavailable"}, domain.PlatformFacebook, CodeServerError},
		{"other 4xx", &statusErr{422, "unprocessable"}, domain.PlatformGoogle, CodeProviderError},
		{"unknown", errors.New("weird provider hiccup"), domain.PlatformFacebook, CodeUnknown},
	}

	for _, tt := range tests {
		pe := Classify(tt.err, tt.platform)
		if pe.Code != tt.expect {
			t.Errorf("%s: Classify -> %s, want %s", tt.name, pe.Code, tt.expect)
		}
	}
}

func TestClassifyStatusBeatsMessage(t *testing.T) {
	// 401 wins over message-based rules per first-match-wins ordering.
	pe := Classify(&statusErr{401, "session has expired"}, domain.PlatformFacebook)
	if pe.Code != CodeUnauthorized {
		t.Errorf("Code = %s, want UNAUTHORIZED", pe.Code)
	}
}

func TestClassifyPassthrough(t *testing.T) {
	orig := NewProviderError(CodeImageRequired, domain.PlatformInstagram, "no media attached")
	got := Classify(fmt.Errorf("publish: %w", orig), domain.PlatformInstagram)
	if got != orig {
		t.Errorf("pre-classified error was re-classified")
	}
}

func TestPermanentVsTransient(t *testing.T) {
	perm := []Code{CodeTokenExpired, CodeMissingScope, CodeImageRequired, CodeForbidden, CodeUnauthorized, CodeNotFound, CodeInvalidInput}
	for _, c := range perm {
		pe := &ProviderError{Code: c}
		if !pe.Permanent() || pe.Transient() {
			t.Errorf("%s: want permanent, not transient", c)
		}
	}
	trans := []Code{CodeRateLimited, CodeNetworkError, CodeServerError}
	for _, c := range trans {
		pe := &ProviderError{Code: c}
		if pe.Permanent() || !pe.Transient() {
			t.Errorf("%s: want transient, not permanent", c)
		}
	}
	unknown := &ProviderError{Code: CodeUnknown}
	if unknown.Permanent() || unknown.Transient() {
		t.Errorf("UNKNOWN must be neither permanent nor transient")
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		mustNot string
	}{
		{"long token run", "invalid token EAABsbCS1iHgBAKZCZBq7", "EAABsbCS1iHgBAKZCZBq7"},
		{"json access token", `{"access_token":"shorttok1","error":"x"}`, "shorttok1"},
		{"json refresh token", `{"refresh_token":"rt9","error":"x"}`, `"rt9"`},
	}
	for _, tt := range tests {
		out := Redact(tt.in)
		if strings.Contains(out, tt.mustNot) {
			t.Errorf("%s: redacted output still contains %q: %q", tt.name, tt.mustNot, out)
		}
	}

	long := strings.Repeat("x ", 400)
	if got := Redact(long); len(got) > 500 {
		t.Errorf("redacted message length %d exceeds cap", len(got))
	}
}

func TestRedactCapKeepsRuneBoundaries(t *testing.T) {
	// Three-byte runes never land cleanly on the 500-byte cap, so a byte
	// slice would cut one in half.
	long := strings.Repeat("日", 300)
	got := Redact(long)
	if len(got) > maxUserMessageLen {
		t.Fatalf("redacted message length %d exceeds cap", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8: %q", got[len(got)-4:])
	}
	if !utf8.ValidString(Redact("a" + strings.Repeat("é", 300))) {
		t.Errorf("truncation split a two-byte rune")
	}
}

func TestClassifiedUserMessageIsSafe(t *testing.T) {
	raw := `Graph error: {"access_token":"EAABsbCS1iHgBAKZCZBq7zweird"} something odd`
	pe := Classify(errors.New(raw), domain.PlatformFacebook)
	if strings.Contains(pe.UserMessage, "EAABsbCS1iHgBAKZCZBq7zweird") {
		t.Errorf("user message leaked a token: %q", pe.UserMessage)
	}
	if pe.Raw() != raw {
		t.Errorf("raw message not retained for logs")
	}
}
