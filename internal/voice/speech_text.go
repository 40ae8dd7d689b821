package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	inlineCodePattern = regexp.MustCompile("`[^`\n]*`")
	mdLinkPattern     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	bareURLPattern    = regexp.MustCompile(`https?://\S+`)
	lineMarkerPattern = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)]|#{1,6}|>)\s+`)
)

// SpeakableText turns a chat reply into text worth reading aloud: fenced and
// inline code, urls, list or heading markers and emoji are dropped, link labels
// are kept, and so are math and currency symbols. A reply made only of markup
// is returned trimmed as-is.
func SpeakableText(reply string) string {
	if spoken := speakable(reply); spoken != "" {
		return spoken
	}
	return strings.TrimSpace(reply)
}

func speakable(reply string) string {
	lines := make([]string, 0, strings.Count(reply, "\n")+1)
	inFence := false
	for _, line := range strings.Split(reply, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		line = lineMarkerPattern.ReplaceAllString(line, "")
		line = inlineCodePattern.ReplaceAllString(line, " ")
		line = mdLinkPattern.ReplaceAllString(line, "$1")
		line = bareURLPattern.ReplaceAllString(line, " ")
		lines = append(lines, line)
	}
	return strings.Join(strings.Fields(strings.Map(speechRune, strings.Join(lines, " "))), " ")
}

// speechRune keeps r, turns it into a separator, or drops it (-1).
func speechRune(r rune) rune {
	switch {
	case r == '\ufe0e' || r == '\ufe0f' || r == '\u20e3':
		return -1
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), unicode.IsSpace(r):
		return r
	case strings.ContainsRune(".,!?:;'\"-()%&\u2019", r):
		return r
	// ~ and | are strikethrough and table syntax.
	case r == '~' || r == '|':
		return ' '
	case unicode.Is(unicode.Sm, r), unicode.Is(unicode.Sc, r):
		return r
	case unicode.IsPunct(r):
		return ' '
	default:
		return -1
	}
}
