package render

import (
	"html/template"
	"strings"
	"unicode"
)

// Highlight escapes text and wraps every case-insensitive occurrence of term
// in <mark>. Matching runs on the raw runes and each raw segment is escaped
// on its own, so markup in the listing can never be split or reassembled.
func Highlight(text, term string) template.HTML {
	needle := []rune(strings.TrimSpace(term))
	for i, r := range needle {
		needle[i] = unicode.ToLower(r)
	}
	if len(needle) == 0 {
		return template.HTML(template.HTMLEscapeString(text))
	}

	hay := []rune(text)
	var b strings.Builder
	last := 0
	for i := 0; i+len(needle) <= len(hay); {
		if !matchFold(hay[i:i+len(needle)], needle) {
			i++
			continue
		}
		b.WriteString(template.HTMLEscapeString(string(hay[last:i])))
		b.WriteString("<mark>")
		b.WriteString(template.HTMLEscapeString(string(hay[i : i+len(needle)])))
		b.WriteString("</mark>")
		i += len(needle)
		last = i
	}
	b.WriteString(template.HTMLEscapeString(string(hay[last:])))
	return template.HTML(b.String())
}

func matchFold(s, lowerNeedle []rune) bool {
	for i, r := range s {
		if unicode.ToLower(r) != lowerNeedle[i] {
			return false
		}
	}
	return true
}
