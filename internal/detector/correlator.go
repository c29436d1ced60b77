package detector

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// chunkEpsilon floors the per-chunk standard deviation rescale.
const chunkEpsilon = 1e-6

// NormalizeChunk converts a block to float64 and divides it by its own standard deviation.
// Near-silent blocks (std <= chunkEpsilon) are passed through unscaled.
func NormalizeChunk(chunk []float32) []float64 {
	out := make([]float64, len(chunk))
	if len(chunk) == 0 {
		return out
	}

	mean := 0.0
	for i, v := range chunk {
		out[i] = float64(v)
		mean += out[i]
	}
	mean /= float64(len(out))

	variance := 0.0
	for _, v := range out {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(out)))
	if std <= chunkEpsilon {
		return out
	}

	scale := 1 / (std + chunkEpsilon)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Correlator is a streaming matched filter for one template.
// It is not safe for concurrent use; the audio callback owns it.
type Correlator struct {
	template  []float64
	threshold float64

	carry  []float64
	window []float64
	plan   *correlationPlan
}

// correlationPlan caches the transform of the reversed template for one FFT size.
type correlationPlan struct {
	size   int
	fft    *fourier.FFT
	kernel []complex128
	padded []float64
	coeff  []complex128
	out    []float64
}

// NewCorrelator builds a correlator with a zeroed carry buffer of template length.
func NewCorrelator(t Template, threshold float64) *Correlator {
	template := make([]float64, len(t.Samples))
	copy(template, t.Samples)
	return &Correlator{
		template:  template,
		threshold: threshold,
		carry:     make([]float64, len(template)),
	}
}

// Threshold returns the absolute peak magnitude a chunk must exceed to detect.
func (c *Correlator) Threshold() float64 {
	return c.threshold
}

// Carry returns a copy of the carry buffer.
func (c *Correlator) Carry() []float64 {
	out := make([]float64, len(c.carry))
	copy(out, c.carry)
	return out
}

// Process scores one normalized chunk against the template, then advances the carry buffer.
// The returned flag is true only when the peak strictly exceeds the threshold.
func (c *Correlator) Process(chunk []float64) (float64, bool) {
	if len(chunk) == 0 || len(c.template) == 0 {
		return 0, false
	}

	c.window = append(c.window[:0], c.carry...)
	c.window = append(c.window, chunk...)

	peak := c.peak(c.window)
	c.Advance(chunk)
	return peak, peak > c.threshold
}

// Advance updates the carry buffer without scoring, keeping the last len(template) samples.
func (c *Correlator) Advance(chunk []float64) {
	l := len(c.carry)
	if l == 0 || len(chunk) == 0 {
		return
	}
	if len(chunk) >= l {
		copy(c.carry, chunk[len(chunk)-l:])
		return
	}
	copy(c.carry, c.carry[len(chunk):])
	copy(c.carry[l-len(chunk):], chunk)
}

// peak returns max |valid cross-correlation| of window against the template.
// A circular transform of size n >= len(window) leaves outputs L-1..W-1 free of wraparound.
func (c *Correlator) peak(window []float64) float64 {
	l := len(c.template)
	w := len(window)
	if w < l {
		return 0
	}

	plan := c.planFor(nextPowerOfTwo(w))
	copy(plan.padded, window)
	for i := w; i < plan.size; i++ {
		plan.padded[i] = 0
	}

	plan.coeff = plan.fft.Coefficients(plan.coeff, plan.padded)
	for i := range plan.coeff {
		plan.coeff[i] *= plan.kernel[i]
	}
	plan.out = plan.fft.Sequence(plan.out, plan.coeff)

	// Sequence is unnormalized.
	scale := 1 / float64(plan.size)
	peak := 0.0
	for _, v := range plan.out[l-1 : w] {
		if a := math.Abs(v) * scale; a > peak {
			peak = a
		}
	}
	return peak
}

func (c *Correlator) planFor(size int) *correlationPlan {
	if c.plan != nil && c.plan.size == size {
		return c.plan
	}

	fft := fourier.NewFFT(size)
	reversed := make([]float64, size)
	l := len(c.template)
	for i := 0; i < l; i++ {
		reversed[i] = c.template[l-1-i]
	}

	c.plan = &correlationPlan{
		size:   size,
		fft:    fft,
		kernel: fft.Coefficients(nil, reversed),
		padded: make([]float64, size),
		coeff:  make([]complex128, size/2+1),
		out:    make([]float64, size),
	}
	return c.plan
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
