package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/1ureka/slotcast/internal/channel"
)

// Encode serializes a Frame into its fixed 9-byte representation.
// Unused trailing bytes are zero.
func Encode(f *Frame) [FrameSize]byte {
	var buf [FrameSize]byte
	buf[0] = f.Tag
	buf[1] = f.MsgID

	switch f.Tag {
	case TagData:
		buf[2] = f.ChunkIndex
		buf[3] = f.TotalChunks
		buf[4] = f.PayloadLen
		copy(buf[5:], f.Payload[:])
	case TagAck:
		binary.BigEndian.PutUint16(buf[2:4], f.SenderHash)
		binary.BigEndian.PutUint16(buf[4:6], f.AckerHash)
	}
	return buf
}

// Decode deserializes a 9-byte buffer into a Frame. A frame that fails
// validation (unknown tag, zero TotalChunks, ChunkIndex outside
// [1, TotalChunks], PayloadLen > 4) yields an error; callers on the poll
// path drop such frames silently, since a stray or default slot value must
// never disrupt the loop.
func Decode(buf [FrameSize]byte) (*Frame, error) {
	f := &Frame{Tag: buf[0], MsgID: buf[1]}

	switch f.Tag {
	case TagData:
		f.ChunkIndex = buf[2]
		f.TotalChunks = buf[3]
		f.PayloadLen = buf[4]
		copy(f.Payload[:], buf[5:])

		if f.TotalChunks == 0 {
			return nil, fmt.Errorf("data frame with zero total chunks")
		}
		if f.ChunkIndex < 1 || f.ChunkIndex > f.TotalChunks {
			return nil, fmt.Errorf("chunk index %d outside [1,%d]", f.ChunkIndex, f.TotalChunks)
		}
		if f.PayloadLen > MaxChunkPayload {
			return nil, fmt.Errorf("payload length %d exceeds %d", f.PayloadLen, MaxChunkPayload)
		}

	case TagAck:
		f.SenderHash = binary.BigEndian.Uint16(buf[2:4])
		f.AckerHash = binary.BigEndian.Uint16(buf[4:6])

	default:
		return nil, fmt.Errorf("unknown frame tag: %d", f.Tag)
	}
	return f, nil
}

// Pack maps 9 frame bytes onto the channel's three 24-bit integers by
// grouping them 3-3-3 into big-endian values.
func Pack(buf [FrameSize]byte) channel.Value {
	var v channel.Value
	for i := range v {
		off := i * 3
		v[i] = uint32(buf[off])<<16 | uint32(buf[off+1])<<8 | uint32(buf[off+2])
	}
	return v
}

// Unpack reverses Pack. Each component is clamped to [0, 2^24-1] first:
// channel values pass through rounded floating storage, so out-of-range
// inputs are treated as noise rather than rejected.
func Unpack(v channel.Value) [FrameSize]byte {
	var buf [FrameSize]byte
	for i, c := range v {
		if c > channel.ComponentMax {
			c = channel.ComponentMax
		}
		off := i * 3
		buf[off] = byte(c >> 16)
		buf[off+1] = byte(c >> 8)
		buf[off+2] = byte(c)
	}
	return buf
}
