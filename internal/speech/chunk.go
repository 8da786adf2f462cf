package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// titleAbbreviations never end a sentence when followed by a name.
var titleAbbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true,
}

// SplitText splits text into chunks of at most maxLen UTF-8 bytes,
// preferring sentence boundaries, then word boundaries. Chunks never split
// a rune. With maxLen <= 0 the text is returned as one chunk.
func SplitText(text string, maxLen int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxLen {
			flush()
		}
		if len(sentence) > maxLen {
			chunks = append(chunks, splitWords(sentence, maxLen)...)
			continue
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

// splitSentences breaks normalized text at sentence-ending punctuation.
func splitSentences(text string) []string {
	var (
		sentences []string
		b         strings.Builder
	)
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if isSentenceBoundary(runes, i) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSentenceBoundary(runes []rune, pos int) bool {
	if pos >= len(runes)-1 {
		return true
	}

	switch runes[pos] {
	case '.', '!', '?', ';':
	default:
		return false
	}

	if !unicode.IsSpace(runes[pos+1]) {
		return false
	}
	if runes[pos] != '.' {
		return true
	}

	// ellipsis
	if pos > 0 && runes[pos-1] == '.' {
		return false
	}

	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) {
		start--
	}
	word := strings.ToLower(string(runes[start+1 : pos]))
	return !titleAbbreviations[word]
}

// splitWords breaks a long run at the last space or comma that fits,
// cutting mid-word only when a single word exceeds maxLen bytes.
func splitWords(s string, maxLen int) []string {
	var parts []string
	for len(s) > maxLen {
		cut := -1
		for i := maxLen; i > 0; i-- {
			if s[i] == ' ' || s[i-1] == ',' {
				cut = i
				break
			}
		}
		if cut <= 0 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(s)
			}
		}
		if p := strings.TrimSpace(s[:cut]); p != "" {
			parts = append(parts, p)
		}
		s = strings.TrimLeft(s[cut:], " ")
	}
	if p := strings.TrimSpace(s); p != "" {
		parts = append(parts, p)
	}
	return parts
}
