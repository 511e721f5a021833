// Package classifier loads the intent model bundle and runs inference on normalized text.
package classifier

import (
	"fmt"

	"psti_chatbot/internal/nlp"
)

// Result is one classification: the model-profile text it saw and the distribution over Labels.
type Result struct {
	Normalized   string
	Distribution []float64
}

// Classifier couples a bundle with the normalizer profile and vectorizer it was trained with.
type Classifier struct {
	bundle     *Bundle
	normalizer *nlp.Normalizer
	vectorizer *nlp.Vectorizer
}

func New(bundle *Bundle) (*Classifier, error) {
	if bundle == nil || bundle.Network == nil {
		return nil, &ModelLoadError{Stage: "init", Err: fmt.Errorf("no model bundle")}
	}
	vec, err := nlp.NewVectorizer(bundle.Vocabulary)
	if err != nil {
		return nil, &ModelLoadError{Stage: "init", Err: err}
	}
	if vec.Dim() != bundle.Network.InputDim() {
		return nil, &ModelLoadError{Stage: "init",
			Err: fmt.Errorf("vectorizer width %d does not match network input %d", vec.Dim(), bundle.Network.InputDim())}
	}
	return &Classifier{
		bundle:     bundle,
		normalizer: nlp.NewNormalizer(bundle.Normalizer),
		vectorizer: vec,
	}, nil
}

// Load reads a bundle directory and builds a ready classifier.
func Load(dir string) (*Classifier, error) {
	bundle, err := LoadBundle(dir)
	if err != nil {
		return nil, err
	}
	return New(bundle)
}

func (c *Classifier) Labels() []string            { return c.bundle.Labels }
func (c *Classifier) Stamp() string               { return c.bundle.Stamp }
func (c *Classifier) Strategy() nlp.Strategy      { return c.bundle.Vocabulary.Strategy() }
func (c *Classifier) Normalizer() *nlp.Normalizer { return c.normalizer }
func (c *Classifier) Bundle() *Bundle             { return c.bundle }

// Predict maps an already vectorized input to a probability distribution.
func (c *Classifier) Predict(vec []float64) ([]float64, error) {
	return c.bundle.Network.Forward(vec)
}

// Classify normalizes, vectorizes and predicts.
func (c *Classifier) Classify(text string) (Result, error) {
	normalized := c.normalizer.Normalize(text)
	vec, err := c.vectorizer.Vectorize(normalized)
	if err != nil {
		return Result{}, err
	}
	dist, err := c.Predict(vec)
	if err != nil {
		return Result{}, err
	}
	return Result{Normalized: normalized, Distribution: dist}, nil
}
