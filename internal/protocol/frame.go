// Package protocol defines the 9-byte frame format carried inside one slot
// write, and its mapping onto the channel's three 24-bit integers.
package protocol

// Frame tag constants.
const (
	TagData uint8 = 0x00 // one chunk of a message
	TagAck  uint8 = 0x01 // delivery confirmation for a completed message
)

const (
	// FrameSize is the fixed frame size in bytes: 72 bits, exactly what one
	// slot holds.
	FrameSize = 9

	// MaxChunkPayload is the number of payload bytes a DATA frame carries.
	MaxChunkPayload = 4

	// MaxMessageSize is the largest message the framer can represent:
	// TotalChunks is a uint8 with a minimum of one chunk.
	MaxMessageSize = 255 * MaxChunkPayload
)

// Frame is the tagged wire unit transmitted through one slot write.
// DATA frames use MsgID, ChunkIndex, TotalChunks, PayloadLen and Payload;
// ACK frames use MsgID, SenderHash and AckerHash. ChunkIndex is 1-based and
// never exceeds TotalChunks.
type Frame struct {
	Tag   uint8
	MsgID uint8

	// DATA fields
	ChunkIndex  uint8
	TotalChunks uint8
	PayloadLen  uint8
	Payload     [MaxChunkPayload]byte

	// ACK fields
	SenderHash uint16 // identity hash of the intended recipient (the original sender)
	AckerHash  uint16 // identity hash of the acknowledging peer
}
