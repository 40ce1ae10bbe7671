package broadcast

import "time"

// Kind names an event published to subscribers.
type Kind string

const (
	KindConnected    Kind = "tcp-connected"
	KindDisconnected Kind = "tcp-disconnected"
	KindDecodeError  Kind = "decode-error"
	KindSocketError  Kind = "socket-error"
	KindPacket       Kind = "tcp-data"
	KindAckSent      Kind = "ack-sent"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Event is one fire-and-forget notification. Data must not be mutated after
// Publish since every subscriber shares it.
type Event struct {
	Kind      Kind      `json:"event"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Time      time.Time `json:"time"`
}

// PacketData is the payload of a KindPacket event.
type PacketData struct {
	IMEI         string `json:"imei"`
	PacketHeader string `json:"packetHeader"`
	Raw          string `json:"raw"`
	Remote       string `json:"remote,omitempty"`
}

// PeerData identifies the remote end of a device connection.
type PeerData struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// NewEvent stamps an event with the current time.
func NewEvent(kind Kind, severity Severity, message string, data any) Event {
	return Event{
		Kind:     kind,
		Severity: severity,
		Message:  message,
		Data:     data,
		Time:     time.Now().UTC(),
	}
}
