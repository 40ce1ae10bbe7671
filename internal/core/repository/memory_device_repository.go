package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"devicegateway/internal/core/model"
)

type inMemoryDeviceRepository struct {
	devices map[string]*model.Device
	mutex   sync.RWMutex
}

func NewInMemoryDeviceRepository() DeviceRepository {
	return &inMemoryDeviceRepository{
		devices: make(map[string]*model.Device),
	}
}

func (r *inMemoryDeviceRepository) RecordFrame(_ context.Context, rec FrameRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	device := r.getOrCreate(rec.IMEI, rec.At)
	device.Source = model.SourceTCP
	device.LastSeen = rec.At
	device.LastHeader = rec.Header
	device.RemoteAddr = rec.RemoteAddr
	device.FrameCount++
	return nil
}

func (r *inMemoryDeviceRepository) RecordSubmission(_ context.Context, imei, data string, at time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	device := r.getOrCreate(imei, at)
	device.Source = model.SourceAPI
	device.LastSeen = at
	device.LastData = data
	return nil
}

func (r *inMemoryDeviceRepository) getOrCreate(imei string, at time.Time) *model.Device {
	device, exists := r.devices[imei]
	if !exists {
		device = model.NewDevice(imei, "", at)
		r.devices[imei] = device
	}
	return device
}

func (r *inMemoryDeviceRepository) FindByIMEI(_ context.Context, imei string) (*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if device, exists := r.devices[imei]; exists {
		copied := *device
		return &copied, nil
	}
	return nil, nil
}

func (r *inMemoryDeviceRepository) FindAll(_ context.Context) ([]*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	devices := make([]*model.Device, 0, len(r.devices))
	for _, device := range r.devices {
		copied := *device
		devices = append(devices, &copied)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	return devices, nil
}
