package sinocastel

import "encoding/binary"

// DeviceIDLength is the size of the device identity field.
const DeviceIDLength = imeiEnd - imeiStart

const protocolVersion = 0x04

// EncodeFrame lays out a device packet the way trackers send it: marker,
// little-endian total length, version, identity, header, body, a zero
// checksum and CRLF. deviceID is padded or truncated to DeviceIDLength.
// Used by the simulator and tests; the gateway itself never encodes.
func EncodeFrame(deviceID []byte, header [2]byte, body []byte) []byte {
	total := 2 + 2 + 1 + DeviceIDLength + len(header) + len(body) + 2 + 2
	frame := make([]byte, 0, total)
	frame = append(frame, startByte1, startByte2)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(total))
	frame = append(frame, protocolVersion)

	id := make([]byte, DeviceIDLength)
	copy(id, deviceID)
	frame = append(frame, id...)
	frame = append(frame, header[:]...)
	frame = append(frame, body...)
	frame = append(frame, 0x00, 0x00)
	frame = append(frame, 0x0D, 0x0A)
	return frame
}
