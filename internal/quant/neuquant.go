// Package quant reduces a truecolor RGB buffer to a 256-entry palette using
// the NeuQuant self-organizing network (Anthony Dekker, 1994).
package quant

import "math"

// Network geometry and learning schedule.
const (
	netSize   = 256
	maxNetPos = netSize - 1

	learningCycles = 100

	netBiasShift = 4
	intBiasShift = 16
	intBias      = 1 << intBiasShift
	gammaShift   = 10
	betaShift    = 10
	beta         = intBias >> betaShift
	betaGamma    = intBias << (gammaShift - betaShift)

	initRad         = netSize >> 3
	radiusBiasShift = 6
	radiusBias      = 1 << radiusBiasShift
	initRadius      = initRad * radiusBias
	radiusDec       = 30

	alphaBiasShift = 10
	initAlpha      = 1 << alphaBiasShift
	radBiasShift   = 8
	radBias        = 1 << radBiasShift
	alphaRadBShift = alphaBiasShift + radBiasShift
	alphaRadBias   = 1 << alphaRadBShift

	prime1 = 499
	prime2 = 491
	prime3 = 487
	prime4 = 503

	minPictureBytes = 3 * prime4
)

// PaletteSize is the number of entries produced by every quantizer.
const PaletteSize = netSize

// NeuQuant is a trained or trainable color network for one RGB buffer.
// It is not safe for concurrent use while BuildColormap runs; after that
// Lookup and Colormap are read-only.
type NeuQuant struct {
	pixels []byte
	sample int

	network  [netSize][4]float64
	frozen   [netSize][4]int
	netIndex [256]int
	bias     [netSize]int32
	freq     [netSize]int32
	radPower [initRad]int32

	built bool
}

// New prepares a quantizer over pixels, a packed RGB buffer of length 3×N.
// sample is the sampling factor: 1 visits every pixel, larger values are
// faster and coarser. Values below 1 are treated as 1.
func New(pixels []byte, sample int) *NeuQuant {
	if sample < 1 {
		sample = 1
	}
	return &NeuQuant{pixels: pixels, sample: sample}
}

// BuildColormap trains the network and indexes it for lookups. It is
// deterministic for a given input and sample factor.
func (nq *NeuQuant) BuildColormap() {
	nq.init()
	nq.learn()
	nq.unbias()
	nq.buildIndex()
	nq.built = true
}

// Colormap returns the palette as 768 bytes of RGB triples ordered by
// palette index.
func (nq *NeuQuant) Colormap() []byte {
	nq.ensureBuilt()
	cmap := make([]byte, 0, netSize*3)
	var order [netSize]int
	for i := 0; i < netSize; i++ {
		order[nq.frozen[i][3]] = i
	}
	for i := 0; i < netSize; i++ {
		n := nq.frozen[order[i]]
		cmap = append(cmap, byte(n[0]), byte(n[1]), byte(n[2]))
	}
	return cmap
}

// Lookup returns the palette index whose color is nearest to (r, g, b)
// under the sum of absolute channel differences.
func (nq *NeuQuant) Lookup(r, g, b byte) int {
	nq.ensureBuilt()
	return nq.search(int(r), int(g), int(b))
}

func (nq *NeuQuant) ensureBuilt() {
	if !nq.built {
		nq.BuildColormap()
	}
}

func (nq *NeuQuant) init() {
	for i := 0; i < netSize; i++ {
		v := float64((i << (netBiasShift + 8)) / netSize)
		nq.network[i] = [4]float64{v, v, v, 0}
		nq.freq[i] = intBias / netSize
		nq.bias[i] = 0
	}
}

func (nq *NeuQuant) learn() {
	length := len(nq.pixels) - len(nq.pixels)%3
	alphaDec := 30 + float64(nq.sample-1)/3
	samplePixels := float64(length) / float64(3*nq.sample)
	delta := int(samplePixels / learningCycles)
	alpha := float64(initAlpha)
	radius := float64(initRadius)

	rad := int(radius) >> radiusBiasShift
	if rad <= 1 {
		rad = 0
	}
	nq.fillRadPower(rad, alpha)

	var step int
	switch {
	case length < minPictureBytes:
		nq.sample = 1
		step = 3
	case length%prime1 != 0:
		step = 3 * prime1
	case length%prime2 != 0:
		step = 3 * prime2
	case length%prime3 != 0:
		step = 3 * prime3
	default:
		step = 3 * prime4
	}
	if length == 0 {
		return
	}

	pos := 0
	for i := 0; float64(i) < samplePixels; {
		r := float64(int(nq.pixels[pos]) << netBiasShift)
		g := float64(int(nq.pixels[pos+1]) << netBiasShift)
		b := float64(int(nq.pixels[pos+2]) << netBiasShift)

		j := nq.contest(r, g, b)
		nq.alterSingle(alpha, j, r, g, b)
		if rad != 0 {
			nq.alterNeighbours(rad, j, r, g, b)
		}

		pos += step
		for pos >= length {
			pos -= length
		}

		i++
		if delta == 0 {
			delta = 1
		}
		if i%delta == 0 {
			alpha -= alpha / alphaDec
			radius -= radius / radiusDec
			rad = int(radius) >> radiusBiasShift
			if rad <= 1 {
				rad = 0
			}
			nq.fillRadPower(rad, alpha)
		}
	}
}

func (nq *NeuQuant) fillRadPower(rad int, alpha float64) {
	rr := rad * rad
	for i := 0; i < rad; i++ {
		nq.radPower[i] = int32(alpha * (float64((rr-i*i)*radBias) / float64(rr)))
	}
}

// contest finds the neuron closest to (r, g, b), biases it and returns the
// index of the best neuron once frequency and bias are taken into account.
func (nq *NeuQuant) contest(r, g, b float64) int {
	bestd := math.MaxInt32 * 1.0
	bestBiasd := bestd
	bestPos, bestBiasPos := -1, -1

	for i := 0; i < netSize; i++ {
		n := &nq.network[i]
		dist := math.Abs(n[0]-r) + math.Abs(n[1]-g) + math.Abs(n[2]-b)
		if dist < bestd {
			bestd = dist
			bestPos = i
		}
		biasDist := dist - float64(nq.bias[i]>>(intBiasShift-netBiasShift))
		if biasDist < bestBiasd {
			bestBiasd = biasDist
			bestBiasPos = i
		}
		betaFreq := nq.freq[i] >> betaShift
		nq.freq[i] -= betaFreq
		nq.bias[i] += betaFreq << gammaShift
	}
	nq.freq[bestPos] += beta
	nq.bias[bestPos] -= betaGamma
	return bestBiasPos
}

func (nq *NeuQuant) alterSingle(alpha float64, i int, r, g, b float64) {
	n := &nq.network[i]
	n[0] -= alpha * (n[0] - r) / initAlpha
	n[1] -= alpha * (n[1] - g) / initAlpha
	n[2] -= alpha * (n[2] - b) / initAlpha
}

func (nq *NeuQuant) alterNeighbours(rad, i int, r, g, b float64) {
	lo := i - rad
	if lo < -1 {
		lo = -1
	}
	hi := i + rad
	if hi > netSize {
		hi = netSize
	}

	j, k, m := i+1, i-1, 1
	for j < hi || k > lo {
		a := float64(nq.radPower[m])
		m++
		if j < hi {
			n := &nq.network[j]
			n[0] -= a * (n[0] - r) / alphaRadBias
			n[1] -= a * (n[1] - g) / alphaRadBias
			n[2] -= a * (n[2] - b) / alphaRadBias
			j++
		}
		if k > lo {
			n := &nq.network[k]
			n[0] -= a * (n[0] - r) / alphaRadBias
			n[1] -= a * (n[1] - g) / alphaRadBias
			n[2] -= a * (n[2] - b) / alphaRadBias
			k--
		}
	}
}

func (nq *NeuQuant) unbias() {
	for i := 0; i < netSize; i++ {
		n := nq.network[i]
		nq.frozen[i] = [4]int{
			clampChannel(int(n[0]) >> netBiasShift),
			clampChannel(int(n[1]) >> netBiasShift),
			clampChannel(int(n[2]) >> netBiasShift),
			i,
		}
	}
}

// buildIndex sorts the frozen network by green and records, for every green
// value, where a search should start.
func (nq *NeuQuant) buildIndex() {
	previous, start := 0, 0
	for i := 0; i < netSize; i++ {
		smallPos := i
		smallVal := nq.frozen[i][1]
		for j := i + 1; j < netSize; j++ {
			if nq.frozen[j][1] < smallVal {
				smallPos = j
				smallVal = nq.frozen[j][1]
			}
		}
		if i != smallPos {
			nq.frozen[i], nq.frozen[smallPos] = nq.frozen[smallPos], nq.frozen[i]
		}
		if smallVal != previous {
			nq.netIndex[previous] = (start + i) >> 1
			for j := previous + 1; j < smallVal; j++ {
				nq.netIndex[j] = i
			}
			previous = smallVal
			start = i
		}
	}
	nq.netIndex[previous] = (start + maxNetPos) >> 1
	for j := previous + 1; j < 256; j++ {
		nq.netIndex[j] = maxNetPos
	}
}

func (nq *NeuQuant) search(r, g, b int) int {
	bestd := 1000
	best := -1
	i := nq.netIndex[g]
	j := i - 1

	for i < netSize || j >= 0 {
		if i < netSize {
			n := nq.frozen[i]
			dist := n[1] - g
			if dist >= bestd {
				i = netSize
			} else {
				i++
				dist = abs(dist) + abs(n[0]-r)
				if dist < bestd {
					dist += abs(n[2] - b)
					if dist < bestd {
						bestd = dist
						best = n[3]
					}
				}
			}
		}
		if j >= 0 {
			n := nq.frozen[j]
			dist := g - n[1]
			if dist >= bestd {
				j = -1
			} else {
				j--
				dist = abs(dist) + abs(n[0]-r)
				if dist < bestd {
					dist += abs(n[2] - b)
					if dist < bestd {
						bestd = dist
						best = n[3]
					}
				}
			}
		}
	}
	return best
}

func clampChannel(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
