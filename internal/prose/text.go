// Package prose provides text measurement and line classification for
// Unit bodies.
package prose

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var htmlTagRe = regexp.MustCompile(`<(p|div|br|h[1-6]|em|strong|i|b|span|blockquote|li)\b[^>]*>`)

// IsHTML reports whether a body carries HTML markup.
func IsHTML(body string) bool {
	return htmlTagRe.MatchString(strings.ToLower(body))
}

// PlainText returns the text of a body, stripping HTML markup when
// present. Block elements become paragraphs.
func PlainText(body string) string {
	if !IsHTML(body) {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	var paras []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	if len(paras) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(paras, "\n\n")
}

// isCJK reports whether r is an ideograph or kana/hangul syllable, each
// of which counts as a word.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// WordCount counts words in text. Whitespace separates words; every CJK
// character is a word of its own.
func WordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case r == '\'' || r == '’' || r == '-':
			// joins words, never starts one
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

// Lines splits text into trimmed, non-empty lines.
func Lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '…':
		return true
	}
	return false
}

// Sentences splits text into trimmed sentences on terminal punctuation.
func Sentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if !isTerminal(r) {
			continue
		}
		// Keep runs like "?!" and closing quotes with the sentence.
		if i+1 < len(runes) && (isTerminal(runes[i+1]) || isCloseQuote(runes[i+1])) {
			continue
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// Normalize lowercases text, drops punctuation, and collapses whitespace.
func Normalize(text string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space && b.Len() > 0:
			b.WriteRune(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns normalized word tokens; CJK characters are tokens of
// their own.
func Tokens(text string) []string {
	var out []string
	for _, f := range strings.Fields(Normalize(text)) {
		var word []rune
		for _, r := range f {
			if isCJK(r) {
				if len(word) > 0 {
					out = append(out, string(word))
					word = word[:0]
				}
				out = append(out, string(r))
				continue
			}
			word = append(word, r)
		}
		if len(word) > 0 {
			out = append(out, string(word))
		}
	}
	return out
}
