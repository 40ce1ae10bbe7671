package sinocastel

import (
	"bytes"
	"encoding/binary"
)

var startMarker = []byte{startByte1, startByte2}

// SplitFrames is a bufio.SplitFunc that cuts a device stream into packets
// using the 0x40 0x40 marker and the little-endian total length that follows
// it. Bytes that do not belong to a packet are returned as their own token so
// they surface as decode errors instead of disappearing.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil
	}

	start := bytes.Index(data, startMarker)
	switch {
	case start > 0:
		return start, data[:start], nil
	case start < 0:
		if atEOF {
			return len(data), data, nil
		}
		// Hold back a trailing marker byte, the rest is noise.
		if data[len(data)-1] == startByte1 {
			if len(data) == 1 {
				return 0, nil, nil
			}
			return len(data) - 1, data[:len(data)-1], nil
		}
		return len(data), data, nil
	}

	if len(data) < minPacketLength {
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}

	length := int(binary.LittleEndian.Uint16(data[lengthOffset:]))
	if length < minPacketLength || length > maxPacketLength {
		// Not a real header; emit the marker and resync after it.
		return len(startMarker), data[:len(startMarker)], nil
	}
	if len(data) < length {
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
	return length, data[:length], nil
}
