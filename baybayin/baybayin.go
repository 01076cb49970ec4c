// Package baybayin renders romanized Filipino words in Baybayin script.
package baybayin

import (
	"strings"
)

const (
	kudlitEI = "ᜒ" // vowel sign i/e
	kudlitOU = "ᜓ" // vowel sign u/o
	virama   = "᜔" // kills the inherent vowel

	// SyllableSeparator joins syllables produced by Syllables.
	SyllableSeparator = " · "
)

// consonant onsets and their base characters. Onsets without a final form
// (l) pass through when they end a word.
var consonants = []struct {
	onset string
	char  string
	final bool
}{
	{"k", "ᜃ", true},
	{"g", "ᜄ", true},
	{"ng", "ᜅ", true},
	{"t", "ᜆ", true},
	{"d", "ᜇ", true},
	{"n", "ᜈ", true},
	{"p", "ᜉ", true},
	{"b", "ᜊ", true},
	{"m", "ᜋ", true},
	{"y", "ᜌ", true},
	{"r", "ᜍ", true},
	{"l", "ᜎ", false},
	{"w", "ᜏ", true},
	{"s", "ᜐ", true},
	{"h", "ᜑ", true},
}

var table = buildTable()

func buildTable() map[string]string {
	t := map[string]string{
		"a": "ᜀ",
		"e": "ᜁ",
		"i": "ᜁ",
		"o": "ᜂ",
		"u": "ᜂ",
	}

	for _, c := range consonants {
		t[c.onset+"a"] = c.char
		t[c.onset+"e"] = c.char + kudlitEI
		t[c.onset+"i"] = c.char + kudlitEI
		t[c.onset+"o"] = c.char + kudlitOU
		t[c.onset+"u"] = c.char + kudlitOU
		if c.final {
			t[c.onset] = c.char + virama
		}
	}

	return t
}

func lookup(syllable string) (string, bool) {
	s, ok := table[syllable]
	return s, ok
}

func clean(word string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(word))
}

// segment splits a cleaned word greedily into the longest known syllables
// (three letters, then two, then one). Unknown letters become their own segment.
func segment(w string) []string {
	var out []string
	for i := 0; i < len(w); {
		n := 1
		for _, size := range []int{3, 2} {
			if i+size <= len(w) {
				if _, ok := lookup(w[i : i+size]); ok {
					n = size
					break
				}
			}
		}
		out = append(out, w[i:i+n])
		i += n
	}

	return out
}

// Translate renders word in Baybayin. Letters outside a-z are dropped and
// letters without a Baybayin form are passed through.
func Translate(word string) string {
	var sb strings.Builder
	for _, s := range segment(clean(word)) {
		if b, ok := lookup(s); ok {
			sb.WriteString(b)
		} else {
			sb.WriteString(s)
		}
	}

	return sb.String()
}

// Syllables returns the segmentation Translate uses, for display.
func Syllables(word string) string {
	return strings.Join(segment(clean(word)), SyllableSeparator)
}
