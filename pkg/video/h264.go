package video

import (
	"bytes"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const (
	nalSlice = 1
	nalIDR   = 5
	nalSPS   = 7
	nalPPS   = 8

	// A GOP that grows past this is dropped until the next keyframe.
	maxGOPBytes = 8 << 20
)

var annexBStart = []byte{0x00, 0x00, 0x00, 0x01}

// gopAssembler depacketizes H.264 RTP and keeps the Annex-B stream from the
// last keyframe, so any cut of it decodes on its own.
type gopAssembler struct {
	depack codecs.H264Packet
	au     bytes.Buffer
	gop    []byte

	sps, pps []byte
}

// push feeds one RTP packet. When the packet completes an access unit and a
// keyframe has been seen, it returns the stream since that keyframe.
func (a *gopAssembler) push(pkt *rtp.Packet) ([]byte, error) {
	nal, err := a.depack.Unmarshal(pkt.Payload)
	if err != nil {
		return nil, err
	}
	a.au.Write(nal)
	if !pkt.Marker || a.au.Len() == 0 {
		return nil, nil
	}

	au := a.au.Bytes()
	defer a.au.Reset()

	var keyframe, hasParams bool
	for _, n := range splitAnnexB(au) {
		switch n[0] & 0x1F {
		case nalSPS:
			a.sps = append(a.sps[:0], n...)
			hasParams = true
		case nalPPS:
			a.pps = append(a.pps[:0], n...)
			hasParams = true
		case nalIDR:
			keyframe = true
		}
	}

	switch {
	case keyframe:
		a.gop = a.gop[:0]
		if !hasParams && a.sps != nil && a.pps != nil {
			a.gop = appendNAL(a.gop, a.sps)
			a.gop = appendNAL(a.gop, a.pps)
		}
		a.gop = append(a.gop, au...)
	case a.gop != nil:
		a.gop = append(a.gop, au...)
	default:
		return nil, nil
	}

	if len(a.gop) > maxGOPBytes {
		a.gop = nil
		return nil, nil
	}
	return bytes.Clone(a.gop), nil
}

func appendNAL(dst, nal []byte) []byte {
	dst = append(dst, annexBStart...)
	return append(dst, nal...)
}

// splitAnnexB returns the NAL units of a stream using 4-byte start codes.
func splitAnnexB(data []byte) [][]byte {
	var nals [][]byte
	for _, n := range bytes.Split(data, annexBStart) {
		if len(n) > 0 {
			nals = append(nals, n)
		}
	}
	return nals
}
