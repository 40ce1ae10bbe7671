package model

import (
	"time"
)

// Device sources.
const (
	SourceTCP = "tcp"
	SourceAPI = "api"
)

// Device is the directory record for one tracker, keyed by IMEI. It holds
// metadata about the device, never the telemetry it sends.
type Device struct {
	IMEI       string    `json:"imei" bson:"imei"`
	Source     string    `json:"source" bson:"source"`
	FirstSeen  time.Time `json:"firstSeen" bson:"firstseen"`
	LastSeen   time.Time `json:"lastSeen" bson:"lastseen"`
	LastHeader string    `json:"lastHeader,omitempty" bson:"lastheader,omitempty"`
	RemoteAddr string    `json:"remoteAddr,omitempty" bson:"remoteaddr,omitempty"`
	FrameCount int64     `json:"frameCount" bson:"framecount"`
	LastData   string    `json:"lastData,omitempty" bson:"lastdata,omitempty"`
}

func NewDevice(imei, source string, at time.Time) *Device {
	return &Device{
		IMEI:      imei,
		Source:    source,
		FirstSeen: at,
		LastSeen:  at,
	}
}

// Status reports "online" when the device was seen within window.
func (d *Device) Status(now time.Time, window time.Duration) string {
	if now.Sub(d.LastSeen) <= window {
		return "online"
	}
	return "offline"
}
