package nlp

import (
	"errors"
	"fmt"
	"sort"
)

// Strategy is the vectorization scheme a trained model expects.
type Strategy string

const (
	StrategySequence   Strategy = "sequence"
	StrategyBagOfWords Strategy = "bow"
)

// UnknownIndex is the slot for out-of-vocabulary tokens and padding in sequence vectors.
const UnknownIndex = 0

var ErrVocabularyNotLoaded = errors.New("vocabulary not loaded")

// Vocabulary maps normalized tokens to vector positions. It is immutable once built.
type Vocabulary struct {
	strategy  Strategy
	index     map[string]int
	size      int
	maxLength int
}

// NewVocabulary validates the mapping against the strategy's index range.
// Sequence vocabularies reserve UnknownIndex, so real tokens must use [1, size).
func NewVocabulary(strategy Strategy, index map[string]int, size, maxLength int) (*Vocabulary, error) {
	if len(index) == 0 {
		return nil, ErrVocabularyNotLoaded
	}
	if size <= 0 {
		return nil, fmt.Errorf("vocabulary size must be positive, got %d", size)
	}

	lo := 0
	switch strategy {
	case StrategySequence:
		lo = UnknownIndex + 1
		if maxLength <= 0 {
			return nil, fmt.Errorf("sequence vocabulary needs a positive max_length, got %d", maxLength)
		}
	case StrategyBagOfWords:
	default:
		return nil, fmt.Errorf("unknown vectorization strategy %q", strategy)
	}

	seen := make(map[int]string, len(index))
	copied := make(map[string]int, len(index))
	for token, idx := range index {
		if token == "" {
			return nil, fmt.Errorf("vocabulary contains an empty token")
		}
		if idx < lo || idx >= size {
			return nil, fmt.Errorf("token %q has index %d outside [%d,%d)", token, idx, lo, size)
		}
		if other, dup := seen[idx]; dup {
			return nil, fmt.Errorf("tokens %q and %q share index %d", other, token, idx)
		}
		seen[idx] = token
		copied[token] = idx
	}

	return &Vocabulary{strategy: strategy, index: copied, size: size, maxLength: maxLength}, nil
}

// BuildVocabulary assigns indices to every distinct token in sorted order.
func BuildVocabulary(strategy Strategy, docs [][]string, maxLength int) (*Vocabulary, error) {
	distinct := make(map[string]struct{})
	for _, doc := range docs {
		for _, t := range doc {
			distinct[t] = struct{}{}
		}
	}
	tokens := make([]string, 0, len(distinct))
	for t := range distinct {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)

	offset := 0
	if strategy == StrategySequence {
		offset = UnknownIndex + 1
	}
	index := make(map[string]int, len(tokens))
	for i, t := range tokens {
		index[t] = i + offset
	}
	return NewVocabulary(strategy, index, len(tokens)+offset, maxLength)
}

func (v *Vocabulary) Strategy() Strategy { return v.strategy }
func (v *Vocabulary) Size() int          { return v.size }
func (v *Vocabulary) MaxLength() int     { return v.maxLength }
func (v *Vocabulary) Len() int           { return len(v.index) }

func (v *Vocabulary) Lookup(token string) (int, bool) {
	idx, ok := v.index[token]
	return idx, ok
}

// Index returns a copy of the token mapping.
func (v *Vocabulary) Index() map[string]int {
	out := make(map[string]int, len(v.index))
	for k, idx := range v.index {
		out[k] = idx
	}
	return out
}

// Tokens lists tokens ordered by index.
func (v *Vocabulary) Tokens() []string {
	tokens := make([]string, 0, len(v.index))
	for t := range v.index {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return v.index[tokens[i]] < v.index[tokens[j]] })
	return tokens
}
