package policy

import "regexp"

var (
	botTokenPattern = regexp.MustCompile(`bot[0-9]{5,}:[A-Za-z0-9_\-]{20,}`)
	bearerPattern   = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/\-]+=*`)
	rawTokenPattern = regexp.MustCompile(`\b[0-9]{5,}:[A-Za-z0-9_\-]{30,}\b`)
)

// RedactSecrets masks credentials that end up in transport errors, such as
// the bot token embedded in every Bot API URL.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := botTokenPattern.ReplaceAllString(out, "bot[REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	next = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	changed = changed || next != out
	out = next

	// Bare tokens outside a URL path, e.g. echoed in an error body.
	next = rawTokenPattern.ReplaceAllString(out, "[REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Redact is RedactSecrets for call sites that only need the text.
func Redact(input string) string {
	out, _ := RedactSecrets(input)
	return out
}
