package tracking

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var skinTone = color.RGBA{R: 120, G: 80, B: 60, A: 255}

func TestHSV8(t *testing.T) {
	tests := []struct {
		name    string
		c       color.RGBA
		h, s, v int
	}{
		{"red", color.RGBA{255, 0, 0, 255}, 0, 255, 255},
		{"green", color.RGBA{0, 255, 0, 255}, 60, 255, 255},
		{"blue", color.RGBA{0, 0, 255, 255}, 120, 255, 255},
		{"gray", color.RGBA{100, 100, 100, 255}, 0, 0, 100},
		{"skin", skinTone, 10, 128, 120},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, s, v := hsv8(solid(1, 1, tc.c), 0, 0)
			assert.Equal(t, []int{tc.h, tc.s, tc.v}, []int{h, s, v})
		})
	}
}

func TestAppearanceModel_Reset(t *testing.T) {
	m := NewAppearanceModel(50, 150)
	m.Reset(image.Pt(4, 3))

	hist := m.Histogram()
	assert.InDelta(t, 1.0, mat.Sum(hist), 1e-9)
	assert.InDelta(t, 1.0/240, hist.At(7, 7), 1e-12)
	require.Len(t, m.prior, 12)
	assert.InDelta(t, 1.0/12, m.prior[0], 1e-12)
}

func TestAppearanceModel_Update(t *testing.T) {
	img := solid(40, 40, skinTone)
	m := NewAppearanceModel(50, 150)
	m.Reset(img.Bounds().Size())

	for i := 0; i < 20; i++ {
		require.True(t, m.Update(img, img.Bounds()))
		assert.InDelta(t, 1.0, mat.Sum(m.Histogram()), 1e-5, "update %d", i)
	}

	hist := m.Histogram()
	hb, sb := bins(10, 128)
	assert.Equal(t, 0, hb)
	assert.Equal(t, 8, sb)
	assert.Greater(t, hist.At(hb, sb), 1.0/240+0.1)
	assert.Less(t, hist.At(5, 5), 1.0/240)
}

func TestAppearanceModel_UpdateOutOfBand(t *testing.T) {
	m := NewAppearanceModel(50, 150)
	before := m.Histogram()

	bright := solid(10, 10, color.RGBA{250, 240, 230, 255})
	assert.False(t, m.Update(bright, bright.Bounds()))
	assert.False(t, m.Update(bright, image.Rect(20, 20, 30, 30)), "window outside image")
	assert.True(t, mat.Equal(before, m.Histogram()))
}

func TestAppearanceModel_Posterior(t *testing.T) {
	img := solid(8, 6, skinTone)
	m := NewAppearanceModel(50, 150)

	post := m.Posterior(img)
	require.Len(t, post, 48)
	want := 0.7/240 + 0.3/48
	assert.InDelta(t, want, post[0], 1e-12)

	for i := 0; i < 50; i++ {
		m.Update(img, img.Bounds())
		post = m.Posterior(img)
	}
	for _, p := range post {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.Greater(t, post[0], want)
}
