package noise

import "math/rand/v2"

// Injector perturbs sensor vectors with zero-mean Gaussian noise.
//
// The zero value draws from the runtime-seeded global source, so successive
// calls never repeat a sequence. Not safe for concurrent use when built with
// New around a non-concurrent source.
type Injector struct {
	rng *rand.Rand
}

// New returns an Injector drawing from src. A nil src behaves like the zero value.
func New(src rand.Source) *Injector {
	if src == nil {
		return &Injector{}
	}
	return &Injector{rng: rand.New(src)}
}

// Apply adds magnitude*N(0,1) to every element of values in place.
// A magnitude of zero leaves values untouched.
func (in *Injector) Apply(values []float64, magnitude float64) {
	if magnitude == 0 {
		return
	}
	for i := range values {
		values[i] += magnitude * in.norm()
	}
}

func (in *Injector) norm() float64 {
	if in == nil || in.rng == nil {
		return rand.NormFloat64()
	}
	return in.rng.NormFloat64()
}
