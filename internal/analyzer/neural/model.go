// Package neural runs the SincNet-style voice classifiers. The
// architecture is fixed: a learned sinc band-pass filter bank over raw
// waveform windows, max pooling, then fully-connected layers with a
// sigmoid output. Two independently trained instances exist, one per task.
package neural

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Weight file layout, little-endian:
//
//	magic   uint32  'SNCW'
//	version uint32
//	numFilters, kernelLen, poolSize, hiddenUnits uint32
//	filter params   float32 x (2*numFilters)   low cutoff Hz, bandwidth Hz
//	fc1 weights     float32 x (hiddenUnits*numFilters)
//	fc1 biases      float32 x hiddenUnits
//	fc2 weights     float32 x hiddenUnits
//	fc2 bias        float32
const (
	weightsMagic   = 0x534e4357 // "SNCW"
	weightsVersion = 1
)

// Model holds one loaded classifier's weights. Shared read-only across
// concurrent inference calls; never mutated after load.
type Model struct {
	NumFilters  int
	KernelLen   int
	PoolSize    int
	HiddenUnits int

	// Per-filter learned cutoffs in Hz.
	LowHz  []float64
	BandHz []float64

	FC1Weights []float64 // hiddenUnits x numFilters, row-major
	FC1Biases  []float64
	FC2Weights []float64 // 1 x hiddenUnits
	FC2Bias    float64

	// Precomputed Hamming-windowed sinc kernels, one per filter.
	kernels [][]float64
	// sampleRate the kernels were materialized for.
	sampleRate int
}

// LoadModel parses a weight blob and materializes the filter kernels for
// the given sample rate.
func LoadModel(r io.Reader, sampleRate int) (*Model, error) {
	var header [6]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != weightsMagic {
		return nil, fmt.Errorf("bad magic 0x%08x", header[0])
	}
	if header[1] != weightsVersion {
		return nil, fmt.Errorf("unsupported weight version %d", header[1])
	}

	m := &Model{
		NumFilters:  int(header[2]),
		KernelLen:   int(header[3]),
		PoolSize:    int(header[4]),
		HiddenUnits: int(header[5]),
		sampleRate:  sampleRate,
	}
	if m.NumFilters <= 0 || m.KernelLen <= 0 || m.PoolSize <= 0 || m.HiddenUnits <= 0 {
		return nil, fmt.Errorf("invalid dimensions: filters=%d kernel=%d pool=%d hidden=%d",
			m.NumFilters, m.KernelLen, m.PoolSize, m.HiddenUnits)
	}

	var err error
	if m.LowHz, err = readFloats(r, m.NumFilters); err != nil {
		return nil, fmt.Errorf("filter low cutoffs: %w", err)
	}
	if m.BandHz, err = readFloats(r, m.NumFilters); err != nil {
		return nil, fmt.Errorf("filter bandwidths: %w", err)
	}
	if m.FC1Weights, err = readFloats(r, m.HiddenUnits*m.NumFilters); err != nil {
		return nil, fmt.Errorf("fc1 weights: %w", err)
	}
	if m.FC1Biases, err = readFloats(r, m.HiddenUnits); err != nil {
		return nil, fmt.Errorf("fc1 biases: %w", err)
	}
	if m.FC2Weights, err = readFloats(r, m.HiddenUnits); err != nil {
		return nil, fmt.Errorf("fc2 weights: %w", err)
	}
	bias, err := readFloats(r, 1)
	if err != nil {
		return nil, fmt.Errorf("fc2 bias: %w", err)
	}
	m.FC2Bias = bias[0]

	m.materializeKernels()
	return m, nil
}

// materializeKernels builds the Hamming-windowed sinc band-pass kernels
// from the learned cutoff parameters.
func (m *Model) materializeKernels() {
	m.kernels = make([][]float64, m.NumFilters)
	center := m.KernelLen / 2
	for f := 0; f < m.NumFilters; f++ {
		low := m.LowHz[f] / float64(m.sampleRate)
		high := (m.LowHz[f] + m.BandHz[f]) / float64(m.sampleRate)
		if high > 0.5 {
			high = 0.5
		}

		kernel := make([]float64, m.KernelLen)
		for n := 0; n < m.KernelLen; n++ {
			t := float64(n - center)
			// Difference of two low-pass sincs gives the band-pass.
			kernel[n] = 2*high*sinc(2*high*t) - 2*low*sinc(2*low*t)
			// Hamming window tames kernel truncation ripple.
			kernel[n] *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(m.KernelLen-1))
		}
		m.kernels[f] = kernel
	}
}

// Forward scores one fixed-length waveform window, returning a value in
// [0,1]. Inference is pure float math over loaded weights: identical input
// always produces the identical score.
func (m *Model) Forward(window []float64) float64 {
	features := make([]float64, m.NumFilters)
	for f, kernel := range m.kernels {
		features[f] = m.filterActivation(window, kernel)
	}

	hidden := make([]float64, m.HiddenUnits)
	for h := 0; h < m.HiddenUnits; h++ {
		sum := m.FC1Biases[h]
		row := h * m.NumFilters
		for f := 0; f < m.NumFilters; f++ {
			sum += m.FC1Weights[row+f] * features[f]
		}
		if sum > 0 { // ReLU
			hidden[h] = sum
		}
	}

	out := m.FC2Bias
	for h := 0; h < m.HiddenUnits; h++ {
		out += m.FC2Weights[h] * hidden[h]
	}
	return 1.0 / (1.0 + math.Exp(-out))
}

// filterActivation convolves the window with one sinc kernel, rectifies,
// max-pools and log-compresses to a single activation.
func (m *Model) filterActivation(window, kernel []float64) float64 {
	n := len(window) - len(kernel) + 1
	if n <= 0 {
		return 0
	}

	maxPooled := 0.0
	for start := 0; start < n; start += m.PoolSize {
		end := start + m.PoolSize
		if end > n {
			end = n
		}
		pool := 0.0
		for i := start; i < end; i++ {
			acc := 0.0
			for j, k := range kernel {
				acc += window[i+j] * k
			}
			if acc < 0 {
				acc = -acc
			}
			if acc > pool {
				pool = acc
			}
		}
		if pool > maxPooled {
			maxPooled = pool
		}
	}
	return math.Log1p(maxPooled)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func readFloats(r io.Reader, n int) ([]float64, error) {
	buf := make([]float32, n)
	if err := binary.Read(r, binary.LittleEndian, &buf); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, v := range buf {
		out[i] = float64(v)
	}
	return out, nil
}
