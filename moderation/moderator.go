// Package moderation censors forbidden words in message content.
// Matching ignores case, punctuation, spacing and common leet substitutions
// so that "B.4.d.g.€r" is caught as well as "badger". A match never starts
// or ends inside a word, "camping" does not hide "scam".
package moderation

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

// projection is the searchable form of a text and the original index of every kept rune.
type projection struct {
	runes   []rune
	indexes []int
}

func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		if p := project(word).runes; len(p) > 0 {
			patterns = append(patterns, p)
		}
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	log.Debug("Moderation dictionary loaded", "words", len(patterns))
	return &Moderator{matcher: m, censoredChar: censoredChar, log: log}, nil
}

// ReadDictionary reads one word per line, skipping blanks and # comments.
func ReadDictionary(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

// Censor masks every forbidden word in original, keeping spacing and length.
// It also returns the dictionary words that matched.
func (m *Moderator) Censor(original string) (string, []string) {
	text := project(original)
	if len(text.runes) == 0 {
		return original, nil
	}
	hits := m.matcher.MultiPatternSearch(text.runes, false)
	if len(hits) == 0 {
		return original, nil
	}

	source := []rune(original)
	out := []rune(original)
	found := make([]string, 0, len(hits))
	for _, hit := range hits {
		start, end := hit.Pos, hit.Pos+len(hit.Word)
		if start < 0 || end > len(text.indexes) {
			continue
		}
		first, last := text.indexes[start], text.indexes[end-1]
		if !atWordEdge(source, first, last) {
			continue
		}
		for i := first; i <= last; i++ {
			out[i] = m.censoredChar
		}
		found = append(found, string(hit.Word))
	}
	if len(found) == 0 {
		return original, nil
	}
	m.log.Debug("Content censored", "matches", len(found), "lang", Language(original))
	return string(out), found
}

// Language guesses the ISO 639-1 code of content, empty when unsure.
func Language(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

func project(input string) projection {
	original := []rune(input)
	p := projection{
		runes:   make([]rune, 0, len(original)),
		indexes: make([]int, 0, len(original)),
	}
	for i, r := range original {
		clean := unleet(r)
		if isNoise(clean) {
			continue
		}
		p.runes = append(p.runes, unicode.ToLower(clean))
		p.indexes = append(p.indexes, i)
	}
	return p
}

// atWordEdge reports whether the runes first..last of text form whole words:
// the match may span separators but must not start or end inside a word.
func atWordEdge(text []rune, first, last int) bool {
	if first > 0 && isWord(text[first-1]) {
		return false
	}
	if last+1 < len(text) && isWord(text[last+1]) {
		return false
	}
	return true
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
