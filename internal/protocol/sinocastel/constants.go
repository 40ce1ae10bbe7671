// Package sinocastel implements the fixed-offset decoder and acknowledgement
// policy for Sino Castel style IMEI trackers.
package sinocastel

// Frame layout, expressed in byte (two hex character token) offsets.
const (
	imeiStart   = 5
	imeiEnd     = 25
	headerStart = 25
	headerEnd   = 27

	// MinFrameLength is the smallest frame Decode accepts.
	MinFrameLength = headerEnd
)

// Stream framing used by SplitFrames: 0x40 0x40, then a little-endian
// uint16 holding the total packet length, trailer included.
const (
	startByte1 = 0x40
	startByte2 = 0x40

	lengthOffset    = 2
	minPacketLength = 4
	maxPacketLength = 4096
)

// Packet headers.
const (
	HeaderLogin = "1001"
)

// loginAckHex is the login acknowledgement expected by the device firmware.
// It carries a fixed device identity and is sent verbatim.
const loginAckHex = "40402900043231384C314542323032333030303536310000009001FFFFFFFF0000F185DA689F2B0D0A"
