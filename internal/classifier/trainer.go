package classifier

import (
	"fmt"
	"math"

	"psti_chatbot/internal/nlp"
)

// Sample is one labelled training or evaluation utterance.
type Sample struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

type TrainConfig struct {
	Epochs       int
	LearningRate float64
	L2           float64
	Normalizer   nlp.Options
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Epochs: 400, LearningRate: 0.5, L2: 1e-4, Normalizer: nlp.ModelOptions()}
}

type TrainReport struct {
	Samples   int     `json:"samples"`
	Skipped   int     `json:"skipped"`
	VocabSize int     `json:"vocab_size"`
	Labels    int     `json:"labels"`
	Epochs    int     `json:"epochs"`
	Loss      float64 `json:"loss"`
	Accuracy  float64 `json:"accuracy"`
}

// Train fits a bag-of-words softmax model with full-batch gradient descent from zero weights,
// so the same samples always produce the same bundle stamp.
func Train(samples []Sample, labels []string, cfg TrainConfig) (*Bundle, TrainReport, error) {
	if err := checkLabels(labels); err != nil {
		return nil, TrainReport{}, err
	}
	if cfg.Epochs <= 0 || cfg.LearningRate <= 0 {
		return nil, TrainReport{}, fmt.Errorf("epochs and learning rate must be positive")
	}

	labelIndex := make(map[string]int, len(labels))
	for i, l := range labels {
		labelIndex[l] = i
	}

	norm := nlp.NewNormalizer(cfg.Normalizer)
	var (
		docs    [][]string
		targets []int
		report  = TrainReport{Labels: len(labels), Epochs: cfg.Epochs}
	)
	for _, s := range samples {
		y, ok := labelIndex[s.Label]
		if !ok {
			return nil, report, fmt.Errorf("sample %q has unknown label %q", s.Text, s.Label)
		}
		tokens := norm.Tokens(s.Text)
		if len(tokens) == 0 {
			report.Skipped++
			continue
		}
		docs = append(docs, tokens)
		targets = append(targets, y)
	}
	if len(docs) == 0 {
		return nil, report, fmt.Errorf("no usable training samples")
	}

	vocab, err := nlp.BuildVocabulary(nlp.StrategyBagOfWords, docs, 0)
	if err != nil {
		return nil, report, err
	}
	vec, err := nlp.NewVectorizer(vocab)
	if err != nil {
		return nil, report, err
	}
	xs := make([][]float64, len(docs))
	for i, d := range docs {
		xs[i] = vec.VectorizeTokens(d)
	}

	v, k := vocab.Size(), len(labels)
	weights := make([][]float64, v)
	for i := range weights {
		weights[i] = make([]float64, k)
	}
	bias := make([]float64, k)
	layer := LayerSpec{Type: LayerDense, Activation: ActivationSoftmax, Units: k, Weights: weights, Bias: bias}

	n := float64(len(xs))
	gradW := make([][]float64, v)
	for i := range gradW {
		gradW[i] = make([]float64, k)
	}
	gradB := make([]float64, k)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for i := range gradW {
			clear(gradW[i])
		}
		clear(gradB)

		for s, x := range xs {
			p := dense(x, layer)
			p[targets[s]] -= 1
			for i, xi := range x {
				if xi == 0 {
					continue
				}
				for j := range p {
					gradW[i][j] += xi * p[j]
				}
			}
			for j := range p {
				gradB[j] += p[j]
			}
		}

		for i := range weights {
			for j := range weights[i] {
				weights[i][j] -= cfg.LearningRate * (gradW[i][j]/n + cfg.L2*weights[i][j])
			}
		}
		for j := range bias {
			bias[j] -= cfg.LearningRate * gradB[j] / n
		}
	}

	var loss float64
	correct := 0
	for s, x := range xs {
		p := dense(x, layer)
		loss -= math.Log(math.Max(p[targets[s]], 1e-12))
		if argmax(p) == targets[s] {
			correct++
		}
	}
	report.Samples = len(xs)
	report.VocabSize = v
	report.Loss = loss / n
	report.Accuracy = float64(correct) / n

	bundle, err := NewBundle(vocab, cfg.Normalizer, labels, []LayerSpec{layer})
	if err != nil {
		return nil, report, err
	}
	return bundle, report, nil
}

// argmax returns the first index holding the maximum.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
