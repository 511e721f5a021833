package nlp

import "strings"

// Vectorizer turns normalized text into the fixed-length input of a classifier.
type Vectorizer struct {
	vocab *Vocabulary
}

func NewVectorizer(vocab *Vocabulary) (*Vectorizer, error) {
	if vocab == nil || vocab.Len() == 0 {
		return nil, ErrVocabularyNotLoaded
	}
	return &Vectorizer{vocab: vocab}, nil
}

func (v *Vectorizer) Vocabulary() *Vocabulary { return v.vocab }

// Dim is the length of every vector Vectorize returns.
func (v *Vectorizer) Dim() int {
	if v.vocab.strategy == StrategySequence {
		return v.vocab.maxLength
	}
	return v.vocab.size
}

// Vectorize expects text that already went through the same Normalizer profile used at training time.
func (v *Vectorizer) Vectorize(normalized string) ([]float64, error) {
	if v == nil || v.vocab == nil {
		return nil, ErrVocabularyNotLoaded
	}
	return v.VectorizeTokens(strings.Fields(normalized)), nil
}

func (v *Vectorizer) VectorizeTokens(tokens []string) []float64 {
	out := make([]float64, v.Dim())

	if v.vocab.strategy == StrategySequence {
		for i := 0; i < len(tokens) && i < len(out); i++ {
			if idx, ok := v.vocab.index[tokens[i]]; ok {
				out[i] = float64(idx)
			} else {
				out[i] = UnknownIndex
			}
		}
		return out
	}

	for _, t := range tokens {
		if idx, ok := v.vocab.index[t]; ok {
			out[idx]++
		}
	}
	return out
}
