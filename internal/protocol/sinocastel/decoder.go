package sinocastel

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrFrameTooShort is returned when a frame does not reach the header offset.
var ErrFrameTooShort = errors.New("too short")

// Packet is a read-only view over one decoded frame.
type Packet struct {
	Tokens []string
	IMEI   string
	Header string
}

// Hex renders the frame as space separated byte tokens.
func (p *Packet) Hex() string {
	return strings.Join(p.Tokens, " ")
}

// Decode renders raw as lowercase hex byte tokens and extracts the IMEI and
// packet header from their fixed offsets.
//
// No checksum, length or delimiter validation is done: the caller hands in one
// read and Decode assumes it is exactly one packet. A packet split over two
// reads, or two packets coalesced into one, decodes incorrectly. Enable
// SplitFrames on the connection when the device stream needs real framing.
func Decode(raw []byte) (*Packet, error) {
	if len(raw) < MinFrameLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrFrameTooShort, len(raw), MinFrameLength)
	}

	tokens := make([]string, len(raw))
	for i, b := range raw {
		tokens[i] = hex.EncodeToString([]byte{b})
	}

	return &Packet{
		Tokens: tokens,
		IMEI:   strings.Join(tokens[imeiStart:imeiEnd], ""),
		Header: strings.Join(tokens[headerStart:headerEnd], ""),
	}, nil
}
