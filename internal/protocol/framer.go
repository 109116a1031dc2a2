package protocol

import "fmt"

// ChunkMessage splits a message into its DATA frames: ceil(len/4) chunks
// with 1-based indices, minimum one chunk so even an empty message occupies
// a frame on the wire.
func ChunkMessage(msgID uint8, data []byte) ([]*Frame, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}

	total := (len(data) + MaxChunkPayload - 1) / MaxChunkPayload
	if total == 0 {
		total = 1
	}

	frames := make([]*Frame, 0, total)
	for i := 0; i < total; i++ {
		chunk := data[i*MaxChunkPayload:]
		if len(chunk) > MaxChunkPayload {
			chunk = chunk[:MaxChunkPayload]
		}

		f := &Frame{
			Tag:         TagData,
			MsgID:       msgID,
			ChunkIndex:  uint8(i + 1),
			TotalChunks: uint8(total),
			PayloadLen:  uint8(len(chunk)),
		}
		copy(f.Payload[:], chunk)
		frames = append(frames, f)
	}
	return frames, nil
}

// AckFrame builds the delivery confirmation for a completed message.
// sender is the identity hash of the intended recipient (the message's
// original sender); acker is the hash of the confirming peer.
func AckFrame(msgID uint8, sender, acker uint16) *Frame {
	return &Frame{
		Tag:        TagAck,
		MsgID:      msgID,
		SenderHash: sender,
		AckerHash:  acker,
	}
}
