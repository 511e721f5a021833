package nlp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	model := NewNormalizer(ModelOptions())
	rule := NewNormalizer(RuleOptions())
	withStops := NewNormalizer(Options{ReplaceSlang: true, RemoveStopWords: true, StopWords: StopWordsExtended})

	tests := []struct {
		name string
		n    *Normalizer
		in   string
		want string
	}{
		{"empty", model, "", ""},
		{"punctuation only", model, "?!... ,,", ""},
		{"de-elongation", model, "Haloooo", "halo"},
		{"double letters kept", model, "maaf", "maaf"},
		{"slang", model, "gmn cara daftar?", "bagaimana cara daftar"},
		{"slang before punctuation", model, "gmn?", "bagaimana"},
		{"multi word slang", model, "makasih banyak", "terima kasih banyak"},
		{"urls and emails", model, "cek https://psti.ubl.ac.id atau mail pstilab@ubl.ac.id ya", "cek atau mail ya"},
		{"digits", model, "beasiswa 2025", "beasiswa num"},
		{"mixed digits", model, "reka25", "reka num"},
		{"digit then slang", model, "gmn2", "bagaimana num"},
		{"diacritics", model, "Café Résumé", "cafe resume"},
		{"whitespace", model, "  lab \t\n psti  ", "laboratorium psti"},
		{"rule profile keeps digits", rule, "mahasiswa reka 25?", "mahasiswa reka 25"},
		{"rule profile keeps pronouns", rule, "skill dia apa?", "skill dia apa"},
		{"stop words", withStops, "apa yang ada di lab dong", "laboratorium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"HALOOOO gan!!! gmn?sih",
		"Halooo gan, gimana caranya daftar beasiswa di lab PSTI???",
		"gmn sih cara akses lab nya? jam brp buka?",
		"gue mau tau info ttg projek reka inovasi dong",
		"makasih banyak yaa infonya sangat membantu!!!",
		"Udah ada belum pengumuman beasiswa 2025?",
		"nn1 aa.a www.example.com/x?y=1 reka24mhs",
		"İstanbul ÇAFÉ naïve",
		"a1b2c3 gmn2 12lab",
		"ß ǅ Ⅻ ½ x²",
	}
	profiles := map[string]*Normalizer{
		"model":    NewNormalizer(ModelOptions()),
		"rule":     NewNormalizer(RuleOptions()),
		"extended": NewNormalizer(Options{ReplaceSlang: true, NormalizeNumbers: true, RemoveStopWords: true, StopWords: StopWordsExtended}),
		"bare":     NewNormalizer(Options{}),
	}

	for name, n := range profiles {
		t.Run(name, func(t *testing.T) {
			for _, in := range inputs {
				once := n.Normalize(in)
				assert.Equal(t, once, n.Normalize(once), "input %q", in)
				assert.Equal(t, strings.TrimSpace(once), once)
				assert.NotContains(t, once, "  ")
			}
		})
	}
}

func TestSlangDictionary_ValuesAreCanonical(t *testing.T) {
	for key, value := range slangDictionary {
		for _, word := range strings.Fields(value) {
			_, isKey := slangDictionary[word]
			assert.False(t, isKey, "value %q of %q is itself a slang key", word, key)
		}
		assert.Equal(t, value, deElongate(value))
	}
}

func TestStats(t *testing.T) {
	n := NewNormalizer(ModelOptions())
	stats := n.Stats("gmn sih cara akses lab nya?")

	assert.Equal(t, 6, stats.OriginalWords)
	assert.Equal(t, "bagaimana sih cara akses laboratorium nya", stats.Processed)
	assert.ElementsMatch(t, []string{"gmn", "lab"}, stats.SlangWords)
	assert.Equal(t, 0, stats.Reduction)
}
