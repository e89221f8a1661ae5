// Package policy evaluates the learned approach policy: a feed-forward actor
// with ELU hidden layers and a linear output, exported from training as JSON.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// ErrShape reports an observation or weight matrix of the wrong size
var ErrShape = errors.New("policy shape mismatch")

const maxWeightsSize = 64 << 20

// Layer is one dense layer as exported: weights are out x in, row major
type Layer struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// File is the weights file layout
type File struct {
	Layers []Layer `json:"layers"`
}

type dense struct {
	w *mat.Dense
	b *mat.VecDense
}

// Network is an immutable actor network
type Network struct {
	layers []dense
}

// Load reads a weights file
func Load(path string) (*Network, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("policy weights must be a .json file, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("stat policy weights: %w", err)
	}
	if info.Size() > maxWeightsSize {
		return nil, fmt.Errorf("policy weights too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("read policy weights: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy weights %s: %w", clean, err)
	}
	return New(f.Layers)
}

// New builds a network, checking that consecutive layers chain
func New(layers []Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrShape)
	}
	n := &Network{}
	prevOut := -1
	for i, l := range layers {
		rows := len(l.Weights)
		if rows == 0 || len(l.Bias) != rows {
			return nil, fmt.Errorf("%w: layer %d has %d rows and %d biases", ErrShape, i, rows, len(l.Bias))
		}
		cols := len(l.Weights[0])
		if cols == 0 {
			return nil, fmt.Errorf("%w: layer %d has no inputs", ErrShape, i)
		}
		if prevOut >= 0 && cols != prevOut {
			return nil, fmt.Errorf("%w: layer %d takes %d inputs, previous layer gives %d", ErrShape, i, cols, prevOut)
		}
		flat := make([]float64, 0, rows*cols)
		for r, row := range l.Weights {
			if len(row) != cols {
				return nil, fmt.Errorf("%w: layer %d row %d has %d columns, want %d", ErrShape, i, r, len(row), cols)
			}
			flat = append(flat, row...)
		}
		n.layers = append(n.layers, dense{
			w: mat.NewDense(rows, cols, flat),
			b: mat.NewVecDense(rows, append([]float64(nil), l.Bias...)),
		})
		prevOut = rows
	}
	return n, nil
}

// InputSize is the observation length
func (n *Network) InputSize() int {
	_, c := n.layers[0].w.Dims()
	return c
}

// OutputSize is the action length
func (n *Network) OutputSize() int {
	r, _ := n.layers[len(n.layers)-1].w.Dims()
	return r
}

// Forward evaluates the actor on obs and returns the raw action
func (n *Network) Forward(obs []float64) ([]float64, error) {
	if len(obs) != n.InputSize() {
		return nil, fmt.Errorf("%w: observation has %d values, network takes %d", ErrShape, len(obs), n.InputSize())
	}
	x := mat.NewVecDense(len(obs), append([]float64(nil), obs...))
	last := len(n.layers) - 1
	for i, l := range n.layers {
		r, _ := l.w.Dims()
		y := mat.NewVecDense(r, nil)
		y.MulVec(l.w, x)
		y.AddVec(y, l.b)
		if i < last {
			for j := 0; j < r; j++ {
				y.SetVec(j, ELU(y.AtVec(j)))
			}
		}
		x = y
	}
	return append([]float64(nil), x.RawVector().Data...), nil
}

// ELU is the exponential linear unit with alpha 1
func ELU(v float64) float64 {
	if v > 0 {
		return v
	}
	return math.Expm1(v)
}
