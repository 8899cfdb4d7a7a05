package irbridge

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encoder frames packets for the bridge: CBOR body, length prefix, CRC and
// byte stuffing between the START and END delimiters.
type Encoder struct {
	mode cbor.EncMode
}

// NewEncoder returns an encoder using canonical CBOR so that identical
// payload maps always produce identical frames.
func NewEncoder() *Encoder {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("irbridge: cbor options: %v", err))
	}
	return &Encoder{mode: mode}
}

// Encode returns the wire form of p.
func (e *Encoder) Encode(p *Packet) ([]byte, error) {
	return e.frame(p.Type(), p.PayloadMap())
}

func (e *Encoder) frame(msgType uint8, payload map[int]interface{}) ([]byte, error) {
	var body interface{}
	if len(payload) > 0 {
		body = payload
	}
	encoded, err := e.mode.Marshal([]interface{}{uint64(msgType), body})
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	if len(encoded) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(encoded), MaxPayloadSize)
	}

	// Length and CBOR body are covered by the CRC; the CRC itself is stuffed
	// along with them.
	inner := binary.BigEndian.AppendUint16(make([]byte, 0, LengthSize+len(encoded)+CRCSize), uint16(len(encoded)))
	inner = append(inner, encoded...)
	inner = binary.BigEndian.AppendUint16(inner, CalculateCRC(inner))

	wire := make([]byte, 0, 2*len(inner)+2)
	wire = append(wire, StartByte)
	wire = appendStuffed(wire, inner)
	return append(wire, EndByte), nil
}

var defaultEncoder = NewEncoder()

// EncodePacket is Encode on a shared encoder. It panics if p cannot be
// framed, which only happens for oversized payloads.
func EncodePacket(p *Packet) []byte {
	wire, err := defaultEncoder.Encode(p)
	if err != nil {
		panic(fmt.Sprintf("irbridge: encode error: %v", err))
	}
	return wire
}

func isSpecial(b byte) bool {
	return b == StartByte || b == EndByte || b == EscByte
}

func appendStuffed(dst, data []byte) []byte {
	for _, b := range data {
		if isSpecial(b) {
			dst = append(dst, EscByte, b^EscXor)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

func stuffBytes(data []byte) []byte {
	return appendStuffed(make([]byte, 0, len(data)*2), data)
}

// UnstuffBytes reverses the escaping applied between the frame delimiters.
func UnstuffBytes(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != EscByte {
			out = append(out, data[i])
			continue
		}
		i++
		if i == len(data) {
			return nil, fmt.Errorf("incomplete escape sequence at end of data")
		}
		out = append(out, data[i]^EscXor)
	}
	return out, nil
}
