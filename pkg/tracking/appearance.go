package tracking

import (
	"image"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
)

const (
	hueBins = 15
	satBins = 16

	hueRange = 180.0 // 8-bit hue covers [0, 180)
	satRange = 256.0

	histRetain      = 0.99 // weight of the previous histogram on update
	posteriorWeight = 0.7  // weight of the histogram lookup in the posterior
)

// AppearanceModel is an adaptive hue/saturation skin model. The histogram
// is refreshed from confirmed face samples and projected back onto frames
// as a per-pixel skin posterior that is smoothed over time.
type AppearanceModel struct {
	hist *mat.Dense // hueBins x satBins, unit L1 mass

	valueMin, valueMax int

	size  image.Point
	prior []float64 // previous posterior, row-major
}

// NewAppearanceModel returns a model that samples pixels whose HSV value
// lies strictly between valueMin and valueMax.
func NewAppearanceModel(valueMin, valueMax int) *AppearanceModel {
	m := &AppearanceModel{
		hist:     mat.NewDense(hueBins, satBins, nil),
		valueMin: valueMin,
		valueMax: valueMax,
	}
	m.Reset(image.Point{})
	return m
}

// Reset makes the histogram uniform and the posterior prior uniform over a
// frame of the given size.
func (m *AppearanceModel) Reset(size image.Point) {
	m.hist.Apply(func(_, _ int, _ float64) float64 {
		return 1.0 / (hueBins * satBins)
	}, m.hist)
	m.resetPrior(size)
}

func (m *AppearanceModel) resetPrior(size image.Point) {
	m.size = size
	n := size.X * size.Y
	m.prior = make([]float64, n)
	if n > 0 {
		u := 1.0 / float64(n)
		for i := range m.prior {
			m.prior[i] = u
		}
	}
}

// Update blends a normalized histogram of window into the model with a
// 1% learning rate. Only pixels inside the value band are counted. It
// reports whether any pixel was sampled; without samples the model is
// unchanged.
func (m *AppearanceModel) Update(img *image.RGBA, window image.Rectangle) bool {
	window = window.Intersect(img.Bounds())
	if window.Empty() {
		return false
	}

	sample := mat.NewDense(hueBins, satBins, nil)
	var count float64
	for y := window.Min.Y; y < window.Max.Y; y++ {
		for x := window.Min.X; x < window.Max.X; x++ {
			h, s, v := hsv8(img, x, y)
			if v <= m.valueMin || v >= m.valueMax {
				continue
			}
			hb, sb := bins(h, s)
			sample.Set(hb, sb, sample.At(hb, sb)+1)
			count++
		}
	}
	if count == 0 {
		return false
	}

	sample.Scale((1-histRetain)/count, sample)
	m.hist.Scale(histRetain, m.hist)
	m.hist.Add(m.hist, sample)
	if total := mat.Sum(m.hist); total > 0 {
		m.hist.Scale(1/total, m.hist)
	}
	return true
}

// Posterior computes the skin probability of every pixel of img as a
// blend of the histogram lookup and the previous posterior, clamped to
// [0, 1]. The result becomes the prior for the next call.
func (m *AppearanceModel) Posterior(img *image.RGBA) []float64 {
	b := img.Bounds()
	if b.Size() != m.size {
		m.resetPrior(b.Size())
	}

	post := make([]float64, len(m.prior))
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < w; x++ {
			h, s, _ := hsv8(img, b.Min.X+x, b.Min.Y+y)
			hb, sb := bins(h, s)
			i := y*w + x
			p := posteriorWeight*m.hist.At(hb, sb) + (1-posteriorWeight)*m.prior[i]
			post[i] = math.Min(math.Max(p, 0), 1)
		}
	}
	m.prior = post
	return post
}

// Histogram returns a copy of the hue/saturation histogram.
func (m *AppearanceModel) Histogram() *mat.Dense {
	return mat.DenseCopyOf(m.hist)
}

// hsv8 returns the pixel at (x, y) in 8-bit HSV: hue in [0, 180),
// saturation and value in [0, 255].
func hsv8(img *image.RGBA, x, y int) (h, s, v int) {
	i := img.PixOffset(x, y)
	c := colorful.Color{
		R: float64(img.Pix[i]) / 255,
		G: float64(img.Pix[i+1]) / 255,
		B: float64(img.Pix[i+2]) / 255,
	}
	hf, sf, vf := c.Hsv()
	h = int(math.Round(hf / 2))
	if h >= int(hueRange) {
		h = 0
	}
	return h, int(math.Round(sf * 255)), int(math.Round(vf * 255))
}

func bins(h, s int) (int, int) {
	hb := int(float64(h) / (hueRange / hueBins))
	sb := int(float64(s) / (satRange / satBins))
	return min(hb, hueBins-1), min(sb, satBins-1)
}
