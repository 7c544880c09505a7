package plugins

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/sambeau/sage/pkg/sage/value"
)

// invalidSize is the text rendered when a dimension string is malformed.
const invalidSize = "Invalid source parameter. Pass in 'originalSize'."

// splitDimensions parses "WIDTHxHEIGHT".
func splitDimensions(node value.Value) (width, height int, ok bool) {
	parts := strings.FieldsFunc(value.Text(node), func(r rune) bool { return r == 'x' })
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}

// focalPoint returns "x,y" from mediaFocalPoint, defaulting to the center.
func focalPoint(media value.Value) string {
	fp := value.Member(media, "mediaFocalPoint")
	if value.IsMissing(fp) {
		return "0.5,0.5"
	}
	x := value.Float(value.Member(fp, "x"))
	y := value.Float(value.Member(fp, "y"))
	return value.NewNumber(x).Inspect() + "," + value.NewNumber(y).Inspect()
}

// altText picks the first of title, tag-stripped body and filename.
func altText(item value.Value) string {
	if title := value.Member(item, "title"); value.Truthy(title) {
		return value.Text(title)
	}
	if body := value.Member(item, "body"); value.Truthy(body) {
		if text := removeTags(value.Text(body)); text != "" {
			return text
		}
	}
	if filename := value.Member(item, "filename"); value.Truthy(filename) {
		return value.Text(filename)
	}
	return ""
}

// removeTags returns the text content of an HTML fragment.
func removeTags(fragment string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}

// escapeAttr escapes text for use inside a double-quoted attribute.
func escapeAttr(text string) string {
	return html.EscapeString(text)
}

// slugify lower-cases s, drops punctuation and joins words with '-'.
func slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			dash = true
		}
	}
	return sb.String()
}

// parseHexColor accepts 3 to 6 hex digits, with or without '#'. Only the
// 3 and 6 digit forms carry a color; the others read as black.
func parseHexColor(s string) (int, bool) {
	hex := strings.ReplaceAll(s, "#", "")
	if len(hex) < 3 || len(hex) > 6 {
		return 0, false
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	switch len(hex) {
	case 6:
		return int(n), true
	case 4, 5:
		return 0, true
	}
	// expand each channel nibble: abc -> aabbcc
	r, g, b := int(n>>8)&0xF, int(n>>4)&0xF, int(n)&0xF
	return r<<20 | r<<16 | g<<12 | g<<8 | b<<4 | b, true
}
