package mapgen

// rng is a mulberry32 sequence. The client runs the identical generator,
// so every draw here must line up with its draws exactly.
type rng struct {
	state uint32
}

func newRNG(seed uint32) *rng {
	return &rng{state: seed}
}

// next returns the next value in [0, 1). All arithmetic wraps at 32 bits.
func (r *rng) next() float64 {
	r.state += 0x6D2B79F5
	z := r.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return float64(z^(z>>14)) / 4294967296.0
}
