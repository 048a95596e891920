// Package netdetect receives hand landmark observations over UDP from
// a companion tracker process. The tracker runs the camera capture and
// the neural detector; this side only decodes a small fixed binary
// format, so the control loop never links against inference code.
package netdetect

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/haptable/haptable/internal/vision"
)

// Wire format, big-endian:
//
//	offset size field
//	0      4    magic "HLK1"
//	4      1    version (currently 1)
//	5      1    flags: bit0 left hand present, bit1 right hand present
//	6      4    sequence number
//	10     8    capture time, microseconds since the Unix epoch
//	18     2    image width, pixels
//	20     2    image height, pixels
//	22     -    per present hand, left first: confidence float32 +
//	            21 landmark (x float32, y float32) pairs
const (
	Magic   = "HLK1"
	Version = 1

	flagLeft  = 1 << 0
	flagRight = 1 << 1

	headerSize   = 22
	handSize     = 4 + vision.LandmarkCount*8
	maxPacketLen = headerSize + 2*handSize
)

// Encode serializes an observation. At most the first hand per view
// goes on the wire; the tracker is expected to have picked its best
// detection already.
func Encode(o vision.Observation) ([]byte, error) {
	if o.Width < 0 || o.Width > math.MaxUint16 || o.Height < 0 || o.Height > math.MaxUint16 {
		return nil, fmt.Errorf("image size %dx%d does not fit the wire format", o.Width, o.Height)
	}

	var flags byte
	size := headerSize
	if len(o.Left) > 0 {
		flags |= flagLeft
		size += handSize
	}
	if len(o.Right) > 0 {
		flags |= flagRight
		size += handSize
	}

	buf := make([]byte, size)
	copy(buf[0:4], Magic)
	buf[4] = Version
	buf[5] = flags
	binary.BigEndian.PutUint32(buf[6:10], uint32(o.Seq))
	binary.BigEndian.PutUint64(buf[10:18], uint64(o.CapturedAt.UnixMicro()))
	binary.BigEndian.PutUint16(buf[18:20], uint16(o.Width))
	binary.BigEndian.PutUint16(buf[20:22], uint16(o.Height))

	off := headerSize
	if flags&flagLeft != 0 {
		off = encodeHand(buf, off, o.Left[0])
	}
	if flags&flagRight != 0 {
		encodeHand(buf, off, o.Right[0])
	}
	return buf, nil
}

func encodeHand(buf []byte, off int, h vision.Hand) int {
	binary.BigEndian.PutUint32(buf[off:], math.Float32bits(float32(h.Confidence)))
	off += 4
	for _, lm := range h.Landmarks {
		binary.BigEndian.PutUint32(buf[off:], math.Float32bits(float32(lm.X)))
		binary.BigEndian.PutUint32(buf[off+4:], math.Float32bits(float32(lm.Y)))
		off += 8
	}
	return off
}

// Decode parses one landmark packet. Length must match the flags
// exactly; trailing bytes mean a framing bug, not padding.
func Decode(data []byte) (vision.Observation, error) {
	if len(data) < headerSize {
		return vision.Observation{}, fmt.Errorf("short packet: %d bytes, want at least %d", len(data), headerSize)
	}
	if string(data[0:4]) != Magic {
		return vision.Observation{}, fmt.Errorf("bad magic %q", data[0:4])
	}
	if data[4] != Version {
		return vision.Observation{}, fmt.Errorf("unsupported version %d", data[4])
	}
	flags := data[5]
	if flags&^(flagLeft|flagRight) != 0 {
		return vision.Observation{}, fmt.Errorf("unknown flags %#x", flags)
	}

	want := headerSize
	if flags&flagLeft != 0 {
		want += handSize
	}
	if flags&flagRight != 0 {
		want += handSize
	}
	if len(data) != want {
		return vision.Observation{}, fmt.Errorf("packet length %d does not match flags %#x, want %d", len(data), flags, want)
	}

	o := vision.Observation{
		Seq:        uint64(binary.BigEndian.Uint32(data[6:10])),
		CapturedAt: time.UnixMicro(int64(binary.BigEndian.Uint64(data[10:18]))),
		Width:      int(binary.BigEndian.Uint16(data[18:20])),
		Height:     int(binary.BigEndian.Uint16(data[20:22])),
	}

	off := headerSize
	if flags&flagLeft != 0 {
		var h vision.Hand
		off = decodeHand(data, off, &h)
		o.Left = []vision.Hand{h}
	}
	if flags&flagRight != 0 {
		var h vision.Hand
		decodeHand(data, off, &h)
		o.Right = []vision.Hand{h}
	}
	return o, nil
}

func decodeHand(data []byte, off int, h *vision.Hand) int {
	h.Confidence = float64(math.Float32frombits(binary.BigEndian.Uint32(data[off:])))
	off += 4
	for i := range h.Landmarks {
		h.Landmarks[i].X = float64(math.Float32frombits(binary.BigEndian.Uint32(data[off:])))
		h.Landmarks[i].Y = float64(math.Float32frombits(binary.BigEndian.Uint32(data[off+4:])))
		off += 8
	}
	return off
}
