package sinocastel

import "encoding/hex"

// ackTable maps a packet header to the reply written back to the device.
// New packet types get their reply by adding an entry here.
var ackTable = map[string][]byte{
	HeaderLogin: mustDecodeHex(loginAckHex),
}

// BuildAck returns the acknowledgement for p, or nil when its header needs no reply.
func BuildAck(p *Packet) []byte {
	if p == nil {
		return nil
	}
	ack, ok := ackTable[p.Header]
	if !ok {
		return nil
	}
	out := make([]byte, len(ack))
	copy(out, ack)
	return out
}

// LoginAck returns a copy of the login acknowledgement payload.
func LoginAck() []byte {
	return BuildAck(&Packet{Header: HeaderLogin})
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("sinocastel: invalid ack literal: " + err.Error())
	}
	return b
}
