package app

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// markupTriggers are characters that render as formatting in dashboards and
// chat bridges. They are replaced with a space so adjacent words stay apart.
const markupTriggers = "*_`#[]!|\\^><~"

var (
	percentEscape = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	tagLike       = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9]*(\s[^<>]*)?/?>|<!--`)
	strictPolicy  = bluemonday.StrictPolicy()
)

// Sanitize reduces an inbound body to single-spaced printable ASCII without
// markup. Layered percent and entity encodings are decoded until the result no
// longer changes, so Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	for {
		next := sanitizePass(s)
		if next == s {
			return next
		}
		s = next
	}
}

func sanitizePass(s string) string {
	s = decodePercentEscapes(s)
	s = html.UnescapeString(s)
	if tagLike.MatchString(s) {
		s = html.UnescapeString(strictPolicy.Sanitize(s))
	}
	return normalizeText(s)
}

// decodePercentEscapes decodes each valid %XX sequence and leaves stray
// percent signs alone.
func decodePercentEscapes(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	return percentEscape.ReplaceAllStringFunc(s, func(m string) string {
		b, err := strconv.ParseUint(m[1:], 16, 8)
		if err != nil {
			return m
		}
		return string([]byte{byte(b)})
	})
}

func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case strings.ContainsRune(markupTriggers, r):
			b.WriteByte(' ')
		case r < 32 || r > 126:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
