package baybayin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		word string
		want string
	}{
		{"single vowel", "a", "ᜀ"},
		{"consonant with inherent a", "ka", "ᜃ"},
		{"kudlit on i", "bi", "ᜊᜒ"},
		{"kudlit on u", "tu", "ᜆᜓ"},
		{"ng digraph", "nga", "ᜅ"},
		{"word", "bata", "ᜊᜆ"},
		{"trailing consonant gets a virama", "anak", "ᜀᜈᜃ᜔"},
		{"case and punctuation are ignored", "Ba-Ta!", "ᜊᜆ"},
		{"unknown letters pass through", "xa", "xᜀ"},
		{"bare l passes through", "l", "l"},
		{"trailing l passes through", "gal", "ᜄl"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Translate(tt.word))
		})
	}
}

func TestSyllables(t *testing.T) {
	assert.Equal(t, "ma · ga · n · da", Syllables("maganda"))
	assert.Equal(t, "sa · ngi · t", Syllables("sangit"))
	assert.Equal(t, "", Syllables("123"))
}

func TestLookup(t *testing.T) {
	s, ok := lookup("ngu")
	assert.True(t, ok)
	assert.Equal(t, "ᜅᜓ", s)

	_, ok = lookup("qa")
	assert.False(t, ok)

	s, ok = lookup("k")
	assert.True(t, ok)
	assert.Equal(t, "ᜃ᜔", s)

	_, ok = lookup("l")
	assert.False(t, ok)
}
