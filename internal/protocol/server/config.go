package server

import "time"

// Framing modes.
const (
	// FramingRead treats every read as exactly one packet.
	FramingRead = "read"
	// FramingLength splits the stream on the protocol length header.
	FramingLength = "length"
)

// Config controls the TCP acceptor and its device sessions.
type Config struct {
	Addr           string
	ReadBufferSize int
	// ReadTimeout and WriteTimeout set per-operation deadlines; zero means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Framing      string
}

func DefaultConfig() Config {
	return Config{
		Addr:           "0.0.0.0:4000",
		ReadBufferSize: 4096,
		Framing:        FramingRead,
	}
}
