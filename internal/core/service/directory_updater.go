package service

import (
	"context"

	log "github.com/sirupsen/logrus"

	"devicegateway/internal/broadcast"
	"devicegateway/internal/core/repository"
)

// DirectoryUpdater keeps the device directory current from decoded packet
// events. It is an ordinary broadcaster subscriber, so a slow database only
// costs it queued events and never stalls device sessions.
type DirectoryUpdater struct {
	devices DeviceService
	sub     *broadcast.Subscription
	log     *log.Entry
}

func NewDirectoryUpdater(devices DeviceService, sub *broadcast.Subscription) *DirectoryUpdater {
	return &DirectoryUpdater{
		devices: devices,
		sub:     sub,
		log:     log.WithField("component", "directory"),
	}
}

// Run consumes events until the subscription closes or ctx is done.
func (u *DirectoryUpdater) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-u.sub.Events():
			if !ok {
				return
			}
			u.handle(ctx, e)
		}
	}
}

func (u *DirectoryUpdater) handle(ctx context.Context, e broadcast.Event) {
	if e.Kind != broadcast.KindPacket {
		return
	}
	data, ok := e.Data.(broadcast.PacketData)
	if !ok {
		return
	}
	err := u.devices.RecordFrame(ctx, repository.FrameRecord{
		IMEI:       data.IMEI,
		Header:     data.PacketHeader,
		RemoteAddr: data.Remote,
		At:         e.Time,
	})
	if err != nil {
		u.log.WithError(err).WithField("imei", data.IMEI).Error("Failed to update device directory")
	}
}
