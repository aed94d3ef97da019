package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nal(header byte, size int) []byte {
	n := make([]byte, size)
	n[0] = header
	for i := 1; i < size; i++ {
		n[i] = byte(i%250) + 1
	}
	return n
}

func annexB(nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = appendNAL(out, n)
	}
	return out
}

// packetize splits an access unit into RTP packets, marker on the last.
func packetize(p *codecs.H264Payloader, au []byte) []*rtp.Packet {
	payloads := p.Payload(1200, au)
	pkts := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		pkts[i] = &rtp.Packet{
			Header:  rtp.Header{Marker: i == len(payloads)-1},
			Payload: payload,
		}
	}
	return pkts
}

func pushAll(t *testing.T, a *gopAssembler, pkts []*rtp.Packet) []byte {
	t.Helper()
	var out []byte
	for i, pkt := range pkts {
		stream, err := a.push(pkt)
		require.NoError(t, err)
		if i < len(pkts)-1 {
			require.Nil(t, stream, "stream before marker")
		}
		out = stream
	}
	return out
}

func TestGOPAssembler(t *testing.T) {
	sps := nal(0x67, 12)
	pps := nal(0x68, 4)
	idr := nal(0x65, 3000)
	p1 := nal(0x41, 200)
	p2 := nal(0x41, 1500)

	var payloader codecs.H264Payloader
	var a gopAssembler

	// Slices before the first keyframe cannot be decoded
	assert.Nil(t, pushAll(t, &a, packetize(&payloader, annexB(p1))))

	got := pushAll(t, &a, packetize(&payloader, annexB(sps, pps, idr)))
	assert.Equal(t, annexB(sps, pps, idr), got)

	got = pushAll(t, &a, packetize(&payloader, annexB(p1)))
	assert.Equal(t, annexB(sps, pps, idr, p1), got)

	got = pushAll(t, &a, packetize(&payloader, annexB(p2)))
	assert.Equal(t, annexB(sps, pps, idr, p1, p2), got)

	// A keyframe without parameter sets restarts the GOP with the cached ones
	idr2 := nal(0x65, 800)
	got = pushAll(t, &a, packetize(&payloader, annexB(idr2)))
	assert.Equal(t, annexB(sps, pps, idr2), got)
}

func TestGOPAssembler_BadPacket(t *testing.T) {
	var a gopAssembler
	_, err := a.push(&rtp.Packet{Header: rtp.Header{Marker: true}})
	assert.Error(t, err)
}

func TestLastJPEG(t *testing.T) {
	first := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0xFF, 0xE0, 3, 4, 0xFF, 0xD9}

	assert.Equal(t, second, lastJPEG(append(append([]byte(nil), first...), second...)))
	assert.Equal(t, first, lastJPEG(first))
	assert.Nil(t, lastJPEG(nil))
	assert.Nil(t, lastJPEG([]byte("not a jpeg")))
}

func fill(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 255
	}
	return img
}

func TestIsBlankFrame(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want bool
	}{
		{"too small", fill(64, 64, color.RGBA{200, 120, 90, 255}), true},
		{"black", fill(320, 240, color.RGBA{5, 5, 5, 255}), true},
		{"decoder gray", fill(320, 240, color.RGBA{128, 128, 128, 255}), true},
		{"scene", fill(320, 240, color.RGBA{200, 120, 90, 255}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isBlankFrame(tt.img))
		})
	}
}

func TestDecoder_ShortStream(t *testing.T) {
	d := NewDecoder(0, 0)
	_, err := d.Decode(context.Background(), []byte{0, 0, 0, 1, 0x65})
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestProducerFromList(t *testing.T) {
	msg := []byte(`{"type":"list","producers":[
		{"id":"aaa","meta":{"name":"other"}},
		{"id":"bbb","meta":{"name":"reachymini"}}]}`)

	id, err := producerFromList(msg, "reachymini")
	require.NoError(t, err)
	assert.Equal(t, "bbb", id)

	_, err = producerFromList(msg, "missing")
	assert.Error(t, err)

	_, err = producerFromList([]byte("{"), "reachymini")
	assert.Error(t, err)
}

func TestClient_NextKeepsNewest(t *testing.T) {
	c := NewClient(DefaultClientConfig("127.0.0.1"), nil)
	t0 := time.Unix(100, 0)

	c.deliver(frame{img: fill(4, 4, color.RGBA{}), ts: t0})
	c.deliver(frame{img: fill(8, 8, color.RGBA{}), ts: t0.Add(time.Second)})

	img, ts, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Second), ts)
	assert.Equal(t, 8, img.Bounds().Dx())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, _, err = c.Next(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestSplitAnnexB(t *testing.T) {
	a, b := nal(0x67, 5), nal(0x65, 9)
	got := splitAnnexB(annexB(a, b))
	require.Len(t, got, 2)
	assert.True(t, bytes.Equal(a, got[0]))
	assert.True(t, bytes.Equal(b, got[1]))
}
