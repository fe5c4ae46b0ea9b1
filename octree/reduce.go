package octree

import (
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Reduction selects how a parent combines its occupied children.
type Reduction string

const (
	// ReductionAverage gives every occupied child the same weight.
	ReductionAverage = Reduction("average")
	// ReductionWeighted weighs each child by the number of fragments below it.
	ReductionWeighted = Reduction("weighted")
)

// ColorSpace selects the space colors are summed in.
type ColorSpace string

const (
	// ColorSpaceSRGB sums the stored 8 bit channels directly.
	ColorSpaceSRGB = ColorSpace("srgb")
	// ColorSpaceLinear sums 16 bit linear light values and converts back to sRGB.
	ColorSpaceLinear = ColorSpace("linear")
)

const linearScale = math.MaxUint16

// accum is a color expanded into the summing space: RGB in the space's units, alpha as is.
type accum [4]uint64

// colorCodec converts colors to and from the space sums are taken in. Everything past expand is
// integer arithmetic, so results do not depend on the order sums were formed in.
type colorCodec interface {
	expand(c color.NRGBA) accum
	compress(a accum) color.NRGBA
}

type srgbCodec struct{}

func (srgbCodec) expand(c color.NRGBA) accum {
	return accum{uint64(c.R), uint64(c.G), uint64(c.B), uint64(c.A)}
}

func (srgbCodec) compress(a accum) color.NRGBA {
	return color.NRGBA{R: uint8(a[0]), G: uint8(a[1]), B: uint8(a[2]), A: uint8(a[3])}
}

var srgbToLinear16 = func() (table [256]uint16) {
	for i := range table {
		v := float64(i) / 255
		r, _, _ := colorful.Color{R: v, G: v, B: v}.LinearRgb()
		table[i] = uint16(math.Round(r * linearScale))
	}
	return table
}()

type linearCodec struct{}

func (linearCodec) expand(c color.NRGBA) accum {
	return accum{uint64(srgbToLinear16[c.R]), uint64(srgbToLinear16[c.G]), uint64(srgbToLinear16[c.B]), uint64(c.A)}
}

func (linearCodec) compress(a accum) color.NRGBA {
	r, g, b := colorful.LinearRgb(
		float64(a[0])/linearScale,
		float64(a[1])/linearScale,
		float64(a[2])/linearScale,
	).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(a[3])}
}

func newColorCodec(space ColorSpace) colorCodec {
	if space == ColorSpaceLinear {
		return linearCodec{}
	}
	return srgbCodec{}
}

// divRound divides rounding halves up.
func divRound(sum, weight uint64) uint64 {
	return (sum + weight/2) / weight
}

func (a accum) divide(weight uint64) accum {
	for i := range a {
		a[i] = divRound(a[i], weight)
	}
	return a
}

// reducer combines the children of one node.
type reducer struct {
	mode  Reduction
	codec colorCodec
}

func newReducer(cfg Config) reducer {
	return reducer{mode: cfg.Reduction, codec: newColorCodec(cfg.ColorSpace)}
}

// resolve turns a leaf's channel sums over count fragments into its color.
func (r reducer) resolve(sums accum, count uint32) color.NRGBA {
	return r.codec.compress(sums.divide(uint64(count)))
}

// reduce combines children with a nonzero count; it returns the parent's color and count. A
// single occupied child is copied exactly.
func (r reducer) reduce(children []NodeRecord) (color.NRGBA, uint32) {
	var (
		total    accum
		weight   uint64
		count    uint32
		occupied int
		last     color.NRGBA
	)
	for _, child := range children {
		if child.Count == 0 {
			continue
		}
		occupied++
		last = child.Color
		count += child.Count
		w := uint64(1)
		if r.mode == ReductionWeighted {
			w = uint64(child.Count)
		}
		expanded := r.codec.expand(child.Color)
		for i := range total {
			total[i] += expanded[i] * w
		}
		weight += w
	}
	switch occupied {
	case 0:
		return color.NRGBA{}, 0
	case 1:
		return last, count
	default:
		return r.codec.compress(total.divide(weight)), count
	}
}
