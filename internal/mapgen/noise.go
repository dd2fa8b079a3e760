package mapgen

import "math"

// latticeHash maps an integer lattice point to [0, 1). The constants match
// the client's shader-style hash; changing them changes every coastline.
func latticeHash(x, y, seed float64) float64 {
	s := math.Sin(x*127.1+y*311.7+seed) * 43758.5453
	return s - math.Floor(s)
}

// valueNoise samples bilinear value noise with a smoothstep fade.
func valueNoise(x, y, seed float64) float64 {
	xi := math.Floor(x)
	yi := math.Floor(y)
	xf := x - xi
	yf := y - yi

	a := latticeHash(xi, yi, seed)
	b := latticeHash(xi+1, yi, seed)
	c := latticeHash(xi, yi+1, seed)
	d := latticeHash(xi+1, yi+1, seed)

	u := xf * xf * (3 - 2*xf)
	v := yf * yf * (3 - 2*yf)

	return a*(1-u)*(1-v) + b*u*(1-v) + c*(1-u)*v + d*u*v
}

// fbm layers five octaves of value noise, halving amplitude and doubling
// frequency per octave.
func fbm(x, y, seed float64) float64 {
	value := 0.0
	amplitude := 0.5
	frequency := 1.0
	for i := 0; i < 5; i++ {
		value += amplitude * valueNoise(x*frequency, y*frequency, seed)
		amplitude *= 0.5
		frequency *= 2
	}
	return value
}
