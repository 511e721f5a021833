package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"psti_chatbot/internal/nlp"
)

const (
	ModelFile     = "model.json"
	TokenizerFile = "tokenizer.json"
	LabelsFile    = "labels.json"

	formatVersion = "psti-ffnn/v1"
)

// ModelLoadError is returned for any missing, unreadable or mutually inconsistent artifact.
// It is fatal at startup.
type ModelLoadError struct {
	Stage string
	Path  string
	Err   error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model load failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("model load failed at %s (%s): %v", e.Stage, e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

type normalizerFile struct {
	ReplaceSlang     bool   `json:"replace_slang"`
	NormalizeNumbers bool   `json:"normalize_numbers"`
	RemoveStopWords  bool   `json:"remove_stop_words"`
	StopWords        string `json:"stop_words"`
	NumberToken      string `json:"number_token"`
}

type tokenizerFile struct {
	Stamp      string         `json:"stamp"`
	Strategy   nlp.Strategy   `json:"strategy"`
	WordIndex  map[string]int `json:"word_index"`
	VocabSize  int            `json:"vocab_size"`
	MaxLength  int            `json:"max_length,omitempty"`
	Normalizer normalizerFile `json:"normalizer"`
}

type labelsFile struct {
	Stamp  string   `json:"stamp"`
	Labels []string `json:"labels"`
}

type modelFile struct {
	Stamp     string      `json:"stamp"`
	Format    string      `json:"format"`
	CreatedAt time.Time   `json:"created_at"`
	InputDim  int         `json:"input_dim"`
	Layers    []LayerSpec `json:"layers"`
}

// Bundle holds the co-trained artifacts that must agree with each other.
type Bundle struct {
	Stamp      string
	CreatedAt  time.Time
	Vocabulary *nlp.Vocabulary
	Normalizer nlp.Options
	Labels     []string
	Network    *Network
}

// NewBundle validates the pieces against each other and stamps them.
func NewBundle(vocab *nlp.Vocabulary, opts nlp.Options, labels []string, layers []LayerSpec) (*Bundle, error) {
	if vocab == nil {
		return nil, nlp.ErrVocabularyNotLoaded
	}
	if err := checkLabels(labels); err != nil {
		return nil, err
	}

	inputDim := vocab.Size()
	if vocab.Strategy() == nlp.StrategySequence {
		inputDim = vocab.MaxLength()
	}
	net, err := NewNetwork(inputDim, vocab.Strategy() == nlp.StrategySequence, layers)
	if err != nil {
		return nil, err
	}
	if net.Outputs() != len(labels) {
		return nil, fmt.Errorf("output layer has %d units but there are %d labels", net.Outputs(), len(labels))
	}
	for _, l := range layers {
		if l.Type == LayerEmbedding && l.InputDim < vocab.Size() {
			return nil, fmt.Errorf("embedding input_dim %d is smaller than vocab_size %d", l.InputDim, vocab.Size())
		}
	}

	if opts.NumberToken == "" {
		opts.NumberToken = "num"
	}
	if opts.StopWords == "" {
		opts.StopWords = nlp.StopWordsMinimal
	}

	return &Bundle{
		Stamp:      digest(vocab, opts, labels, layers),
		Vocabulary: vocab,
		Normalizer: opts,
		Labels:     append([]string(nil), labels...),
		Network:    net,
	}, nil
}

func checkLabels(labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("label map is empty")
	}
	seen := make(map[string]int, len(labels))
	for i, l := range labels {
		if l == "" {
			return fmt.Errorf("label %d is empty", i)
		}
		if j, dup := seen[l]; dup {
			return fmt.Errorf("label %q appears at positions %d and %d", l, j, i)
		}
		seen[l] = i
	}
	return nil
}

// digest covers everything a prediction depends on. Floats use the shortest round-trip form,
// so the value survives a JSON encode/decode cycle unchanged.
func digest(vocab *nlp.Vocabulary, opts nlp.Options, labels []string, layers []LayerSpec) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\nstrategy=%s size=%d max=%d\n", formatVersion, vocab.Strategy(), vocab.Size(), vocab.MaxLength())
	fmt.Fprintf(h, "norm=%t,%t,%t,%s,%s\n", opts.ReplaceSlang, opts.NormalizeNumbers, opts.RemoveStopWords, opts.StopWords, opts.NumberToken)
	for _, tok := range vocab.Tokens() {
		idx, _ := vocab.Lookup(tok)
		fmt.Fprintf(h, "v %s %d\n", tok, idx)
	}
	for i, l := range labels {
		fmt.Fprintf(h, "l %d %s\n", i, l)
	}
	for i, l := range layers {
		fmt.Fprintf(h, "layer %d %s %s %d %d %d\n", i, l.Type, l.Activation, l.Units, l.InputDim, l.OutputDim)
		for _, row := range l.Weights {
			writeFloats(h, row)
		}
		writeFloats(h, l.Bias)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeFloats(h hash.Hash, vals []float64) {
	buf := make([]byte, 0, 24*len(vals)+1)
	for _, v := range vals {
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
		buf = append(buf, ',')
	}
	buf = append(buf, '\n')
	h.Write(buf)
}

// LoadBundle reads all three artifact files from dir. Nothing is returned unless every file is
// present, parses, carries the same stamp and that stamp matches the recomputed digest.
func LoadBundle(dir string) (*Bundle, error) {
	var (
		tok tokenizerFile
		lab labelsFile
		mod modelFile
	)
	for _, f := range []struct {
		name string
		dst  any
	}{
		{TokenizerFile, &tok},
		{LabelsFile, &lab},
		{ModelFile, &mod},
	} {
		path := filepath.Join(dir, f.name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ModelLoadError{Stage: "read", Path: path, Err: err}
		}
		if err := sonic.Unmarshal(data, f.dst); err != nil {
			return nil, &ModelLoadError{Stage: "parse", Path: path, Err: errors.Wrap(err, "invalid JSON")}
		}
	}

	if mod.Format != formatVersion {
		return nil, &ModelLoadError{Stage: "format", Path: filepath.Join(dir, ModelFile),
			Err: errors.Errorf("unsupported format %q, want %q", mod.Format, formatVersion)}
	}
	if tok.Stamp == "" || tok.Stamp != lab.Stamp || tok.Stamp != mod.Stamp {
		return nil, &ModelLoadError{Stage: "stamp", Path: dir,
			Err: errors.Errorf("artifact stamps disagree: tokenizer=%q labels=%q model=%q", tok.Stamp, lab.Stamp, mod.Stamp)}
	}

	vocab, err := nlp.NewVocabulary(tok.Strategy, tok.WordIndex, tok.VocabSize, tok.MaxLength)
	if err != nil {
		return nil, &ModelLoadError{Stage: "vocabulary", Path: filepath.Join(dir, TokenizerFile), Err: err}
	}
	opts := nlp.Options{
		ReplaceSlang:     tok.Normalizer.ReplaceSlang,
		NormalizeNumbers: tok.Normalizer.NormalizeNumbers,
		RemoveStopWords:  tok.Normalizer.RemoveStopWords,
		StopWords:        nlp.StopWordList(tok.Normalizer.StopWords),
		NumberToken:      tok.Normalizer.NumberToken,
	}

	bundle, err := NewBundle(vocab, opts, lab.Labels, mod.Layers)
	if err != nil {
		return nil, &ModelLoadError{Stage: "topology", Path: dir, Err: err}
	}
	if mod.InputDim != bundle.Network.InputDim() {
		return nil, &ModelLoadError{Stage: "topology", Path: filepath.Join(dir, ModelFile),
			Err: errors.Errorf("declared input_dim %d, vectorizer produces %d", mod.InputDim, bundle.Network.InputDim())}
	}
	if bundle.Stamp != tok.Stamp {
		return nil, &ModelLoadError{Stage: "stamp", Path: dir,
			Err: errors.Errorf("artifacts were modified after stamping: recorded %s, computed %s", tok.Stamp, bundle.Stamp)}
	}
	bundle.CreatedAt = mod.CreatedAt
	return bundle, nil
}

// Save writes the bundle into dir, one file at a time through a temporary name.
func (b *Bundle) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create model directory")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	tok := tokenizerFile{
		Stamp:     b.Stamp,
		Strategy:  b.Vocabulary.Strategy(),
		WordIndex: b.Vocabulary.Index(),
		VocabSize: b.Vocabulary.Size(),
		MaxLength: b.Vocabulary.MaxLength(),
		Normalizer: normalizerFile{
			ReplaceSlang:     b.Normalizer.ReplaceSlang,
			NormalizeNumbers: b.Normalizer.NormalizeNumbers,
			RemoveStopWords:  b.Normalizer.RemoveStopWords,
			StopWords:        string(b.Normalizer.StopWords),
			NumberToken:      b.Normalizer.NumberToken,
		},
	}
	lab := labelsFile{Stamp: b.Stamp, Labels: b.Labels}
	mod := modelFile{
		Stamp:     b.Stamp,
		Format:    formatVersion,
		CreatedAt: b.CreatedAt,
		InputDim:  b.Network.InputDim(),
		Layers:    b.Network.Layers(),
	}

	for name, v := range map[string]any{TokenizerFile: tok, LabelsFile: lab, ModelFile: mod} {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrapf(err, "encode %s", name)
		}
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}
