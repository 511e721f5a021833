// Package nlp turns raw Indonesian chat text into canonical tokens and classifier input vectors.
package nlp

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)\b(?:[a-z][a-z0-9+.-]*://|www\.)\S+`)
	emailPattern = regexp.MustCompile(`[\p{L}\p{N}._%+-]+@[\p{L}\p{N}.-]+\.\p{L}{2,}`)
)

// Options selects the optional normalization steps.
type Options struct {
	ReplaceSlang     bool
	NormalizeNumbers bool
	RemoveStopWords  bool
	StopWords        StopWordList
	// NumberToken replaces every digit run when NormalizeNumbers is set. Defaults to "num".
	NumberToken string
}

// ModelOptions is the profile the trainer and classifier use.
func ModelOptions() Options {
	return Options{ReplaceSlang: true, NormalizeNumbers: true, StopWords: StopWordsMinimal}
}

// RuleOptions keeps digits and pronouns so keyword rules can see cohort years and anaphora.
func RuleOptions() Options {
	return Options{ReplaceSlang: true}
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	opts      Options
	slang     map[string]string
	stopWords map[string]struct{}
}

func NewNormalizer(opts Options) *Normalizer {
	if opts.NumberToken == "" {
		opts.NumberToken = "num"
	}
	opts.NumberToken = strings.ToLower(opts.NumberToken)
	if opts.StopWords == "" {
		opts.StopWords = StopWordsMinimal
	}
	return &Normalizer{
		opts:      opts,
		slang:     slangDictionary,
		stopWords: stopWordSet(opts.StopWords),
	}
}

// Options returns the profile this normalizer was built with.
func (n *Normalizer) Options() Options { return n.opts }

// Normalize returns lowercase letters, digits and single spaces. Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(text string) string {
	return strings.Join(n.Tokens(text), " ")
}

// Tokens is Normalize split on spaces.
func (n *Normalizer) Tokens(text string) []string {
	if text == "" {
		return nil
	}

	s := foldDiacritics(strings.ToLower(text))
	s = urlPattern.ReplaceAllString(s, " ")
	s = emailPattern.ReplaceAllString(s, " ")
	s = deElongate(keepAlphanumeric(s))

	tokens := strings.Fields(s)
	// digits are split off first so "gmn2" expands on the first pass, not the second
	if n.opts.NormalizeNumbers {
		tokens = splitNumbers(tokens, n.opts.NumberToken)
	}
	if n.opts.ReplaceSlang {
		tokens = n.expandSlang(tokens)
	}
	if n.opts.RemoveStopWords {
		kept := tokens[:0]
		for _, t := range tokens {
			if _, stop := n.stopWords[t]; !stop {
				kept = append(kept, t)
			}
		}
		tokens = kept
	}
	return tokens
}

func (n *Normalizer) expandSlang(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if canonical, ok := n.slang[t]; ok {
			out = append(out, strings.Fields(canonical)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// IsSlang reports whether the lowercase word has a canonical replacement.
func (n *Normalizer) IsSlang(word string) bool {
	_, ok := n.slang[strings.ToLower(word)]
	return ok
}

func foldDiacritics(s string) string {
	// transform.Chain is stateful, so a fresh chain per call keeps Normalizer goroutine-safe.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func keepAlphanumeric(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
}

// deElongate collapses runs of three or more identical letters to a single letter.
func deElongate(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); {
		j := i + 1
		for j < len(rs) && rs[j] == rs[i] {
			j++
		}
		if j-i >= 3 && unicode.IsLetter(rs[i]) {
			b.WriteRune(rs[i])
		} else {
			b.WriteString(string(rs[i:j]))
		}
		i = j
	}
	return b.String()
}

// splitNumbers replaces each digit run with a standalone token, splitting mixed tokens like "reka25".
func splitNumbers(tokens []string, token string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if strings.IndexFunc(t, unicode.IsDigit) < 0 {
			out = append(out, t)
			continue
		}
		var word []rune
		inDigits := false
		for _, r := range t {
			if unicode.IsDigit(r) {
				if len(word) > 0 {
					out = append(out, string(word))
					word = word[:0]
				}
				if !inDigits {
					out = append(out, token)
				}
				inDigits = true
				continue
			}
			inDigits = false
			word = append(word, r)
		}
		if len(word) > 0 {
			out = append(out, string(word))
		}
	}
	return out
}

// Stats describes what normalization did to one input.
type Stats struct {
	Original       string   `json:"original"`
	Processed      string   `json:"processed"`
	OriginalWords  int      `json:"original_words"`
	ProcessedWords int      `json:"processed_words"`
	SlangWords     []string `json:"slang_words"`
	Reduction      int      `json:"reduction"`
}

func (n *Normalizer) Stats(text string) Stats {
	originalWords := strings.Fields(text)
	processed := n.Tokens(text)

	var slang []string
	for _, w := range strings.Fields(deElongate(keepAlphanumeric(strings.ToLower(text)))) {
		if n.IsSlang(w) {
			slang = append(slang, w)
		}
	}

	return Stats{
		Original:       text,
		Processed:      strings.Join(processed, " "),
		OriginalWords:  len(originalWords),
		ProcessedWords: len(processed),
		SlangWords:     slang,
		Reduction:      len(originalWords) - len(processed),
	}
}
