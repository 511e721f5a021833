package classifier

import (
	"errors"
	"fmt"
	"math"
)

const (
	LayerEmbedding     = "embedding"
	LayerGlobalAvgPool = "global_average_pooling1d"
	LayerFlatten       = "flatten"
	LayerDense         = "dense"
	LayerDropout       = "dropout"
)

const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
)

var ErrInputShape = errors.New("input vector has the wrong length")

// LayerSpec is one layer of a feed-forward topology with its trained parameters.
// Dense weights are [input][units]; embedding weights are [input_dim][output_dim].
type LayerSpec struct {
	Type       string      `json:"type"`
	Activation string      `json:"activation,omitempty"`
	Units      int         `json:"units,omitempty"`
	InputDim   int         `json:"input_dim,omitempty"`
	OutputDim  int         `json:"output_dim,omitempty"`
	Rate       float64     `json:"rate,omitempty"`
	Weights    [][]float64 `json:"weights,omitempty"`
	Bias       []float64   `json:"bias,omitempty"`
}

type shapeKind int

const (
	shapeIndices shapeKind = iota // token ids of a sequence vectorizer
	shapeMatrix                   // one row per sequence position
	shapeVector
)

type shape struct {
	kind  shapeKind
	rows  int
	width int
}

// Network is a validated, read-only feed-forward model. Forward is safe for concurrent use.
type Network struct {
	inputDim int
	sequence bool
	layers   []LayerSpec
	outputs  int
}

// NewNetwork checks every layer's parameter shapes against the flow of activations.
// sequence reports whether the input is a vector of token ids.
func NewNetwork(inputDim int, sequence bool, layers []LayerSpec) (*Network, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("input dimension must be positive, got %d", inputDim)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("topology has no layers")
	}

	cur := shape{kind: shapeVector, width: inputDim}
	if sequence {
		cur = shape{kind: shapeIndices, rows: inputDim}
	}

	for i, l := range layers {
		next, err := l.outputShape(cur)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Type, err)
		}
		cur = next
	}
	if cur.kind != shapeVector {
		return nil, fmt.Errorf("topology must end in a vector, got a %d-row matrix", cur.rows)
	}

	return &Network{inputDim: inputDim, sequence: sequence, layers: layers, outputs: cur.width}, nil
}

func (l LayerSpec) outputShape(in shape) (shape, error) {
	switch l.Type {
	case LayerEmbedding:
		if in.kind != shapeIndices {
			return shape{}, fmt.Errorf("embedding needs token ids as input")
		}
		if l.InputDim <= 0 || l.OutputDim <= 0 {
			return shape{}, fmt.Errorf("input_dim and output_dim must be positive")
		}
		if err := checkMatrix(l.Weights, l.InputDim, l.OutputDim); err != nil {
			return shape{}, err
		}
		return shape{kind: shapeMatrix, rows: in.rows, width: l.OutputDim}, nil

	case LayerGlobalAvgPool:
		if in.kind != shapeMatrix {
			return shape{}, fmt.Errorf("pooling needs a sequence of vectors")
		}
		return shape{kind: shapeVector, width: in.width}, nil

	case LayerFlatten:
		switch in.kind {
		case shapeMatrix:
			return shape{kind: shapeVector, width: in.rows * in.width}, nil
		case shapeVector:
			return in, nil
		}
		return shape{}, fmt.Errorf("cannot flatten raw token ids")

	case LayerDense:
		if in.kind != shapeVector {
			return shape{}, fmt.Errorf("dense needs a vector input")
		}
		if l.Units <= 0 {
			return shape{}, fmt.Errorf("units must be positive")
		}
		if err := checkMatrix(l.Weights, in.width, l.Units); err != nil {
			return shape{}, err
		}
		if len(l.Bias) != l.Units {
			return shape{}, fmt.Errorf("bias has %d values, want %d", len(l.Bias), l.Units)
		}
		switch l.Activation {
		case "", ActivationLinear, ActivationReLU, ActivationSoftmax, ActivationSigmoid, ActivationTanh:
		default:
			return shape{}, fmt.Errorf("unsupported activation %q", l.Activation)
		}
		return shape{kind: shapeVector, width: l.Units}, nil

	case LayerDropout:
		return in, nil
	}
	return shape{}, fmt.Errorf("unsupported layer type %q", l.Type)
}

func checkMatrix(w [][]float64, rows, cols int) error {
	if len(w) != rows {
		return fmt.Errorf("weights have %d rows, want %d", len(w), rows)
	}
	for i, row := range w {
		if len(row) != cols {
			return fmt.Errorf("weights row %d has %d columns, want %d", i, len(row), cols)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("weights row %d contains a non-finite value", i)
			}
		}
	}
	return nil
}

func (n *Network) InputDim() int       { return n.inputDim }
func (n *Network) Outputs() int        { return n.outputs }
func (n *Network) Layers() []LayerSpec { return n.layers }
func (n *Network) Sequence() bool      { return n.sequence }

// Forward returns a probability distribution over the output units.
// A softmax is applied at the end unless the last layer already produced one.
func (n *Network) Forward(x []float64) ([]float64, error) {
	if len(x) != n.inputDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputShape, len(x), n.inputDim)
	}

	var (
		ids    []int
		matrix [][]float64
		vec    []float64
	)
	if n.sequence {
		ids = make([]int, len(x))
		for i, v := range x {
			ids[i] = int(v)
		}
	} else {
		vec = append([]float64(nil), x...)
	}

	softmaxed := false
	for _, l := range n.layers {
		if l.Type != LayerDropout {
			softmaxed = false
		}
		switch l.Type {
		case LayerEmbedding:
			matrix = make([][]float64, len(ids))
			for i, id := range ids {
				if id < 0 || id >= l.InputDim {
					id = 0
				}
				matrix[i] = l.Weights[id]
			}
		case LayerGlobalAvgPool:
			vec = meanRows(matrix)
			matrix = nil
		case LayerFlatten:
			if matrix != nil {
				vec = make([]float64, 0, len(matrix)*len(matrix[0]))
				for _, row := range matrix {
					vec = append(vec, row...)
				}
				matrix = nil
			}
		case LayerDense:
			vec = dense(vec, l)
			softmaxed = l.Activation == ActivationSoftmax
		case LayerDropout:
		}
	}

	if !softmaxed {
		softmax(vec)
	}
	return vec, nil
}

func meanRows(m [][]float64) []float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]float64, len(m[0]))
	for _, row := range m {
		for j, v := range row {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(m))
	}
	return out
}

func dense(in []float64, l LayerSpec) []float64 {
	out := append([]float64(nil), l.Bias...)
	for i, x := range in {
		if x == 0 {
			continue
		}
		row := l.Weights[i]
		for j := range out {
			out[j] += x * row[j]
		}
	}

	switch l.Activation {
	case ActivationReLU:
		for j, v := range out {
			if v < 0 {
				out[j] = 0
			}
		}
	case ActivationSigmoid:
		for j, v := range out {
			out[j] = 1 / (1 + math.Exp(-v))
		}
	case ActivationTanh:
		for j, v := range out {
			out[j] = math.Tanh(v)
		}
	case ActivationSoftmax:
		softmax(out)
	}
	return out
}

// softmax normalizes in place, shifting by the maximum for numerical stability.
func softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	peak := v[0]
	for _, x := range v[1:] {
		if x > peak {
			peak = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - peak)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
