package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"devicegateway/internal/cache"
	"devicegateway/internal/core/model"
	"devicegateway/internal/core/repository"
)

const maxIMEILength = 64

var ErrInvalidIMEI = errors.New("invalid imei")

type DeviceService interface {
	RecordFrame(ctx context.Context, rec repository.FrameRecord) error
	Submit(ctx context.Context, imei, data string) (*model.Device, error)
	GetDevice(ctx context.Context, imei string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]*model.Device, error)
}

type deviceService struct {
	deviceRepo repository.DeviceRepository
	cache      *cache.Cache
	cacheTTL   time.Duration
	now        func() time.Time
}

// NewDeviceService wires the directory. c may be nil or disabled.
func NewDeviceService(deviceRepo repository.DeviceRepository, c *cache.Cache, cacheTTL time.Duration) DeviceService {
	return &deviceService{
		deviceRepo: deviceRepo,
		cache:      c,
		cacheTTL:   cacheTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *deviceService) RecordFrame(ctx context.Context, rec repository.FrameRecord) error {
	if err := validateIMEI(rec.IMEI); err != nil {
		return err
	}
	if rec.At.IsZero() {
		rec.At = s.now()
	}
	if err := s.deviceRepo.RecordFrame(ctx, rec); err != nil {
		return fmt.Errorf("record frame for %s: %w", rec.IMEI, err)
	}
	s.invalidate(ctx, rec.IMEI)
	return nil
}

// Submit stores an out-of-band payload. It never reaches the decoder.
func (s *deviceService) Submit(ctx context.Context, imei, data string) (*model.Device, error) {
	imei = strings.TrimSpace(imei)
	if err := validateIMEI(imei); err != nil {
		return nil, err
	}
	if err := s.deviceRepo.RecordSubmission(ctx, imei, data, s.now()); err != nil {
		return nil, fmt.Errorf("record submission for %s: %w", imei, err)
	}
	s.invalidate(ctx, imei)
	return s.deviceRepo.FindByIMEI(ctx, imei)
}

func (s *deviceService) GetDevice(ctx context.Context, imei string) (*model.Device, error) {
	if err := validateIMEI(imei); err != nil {
		return nil, err
	}

	var cached model.Device
	err := s.cache.Get(ctx, imei, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.WithError(err).WithField("imei", imei).Warn("Device cache read failed")
	}

	device, err := s.deviceRepo.FindByIMEI(ctx, imei)
	if err != nil || device == nil {
		return device, err
	}
	if err := s.cache.Set(ctx, imei, device, s.cacheTTL); err != nil {
		log.WithError(err).WithField("imei", imei).Warn("Device cache write failed")
	}
	return device, nil
}

func (s *deviceService) ListDevices(ctx context.Context) ([]*model.Device, error) {
	return s.deviceRepo.FindAll(ctx)
}

func (s *deviceService) invalidate(ctx context.Context, imei string) {
	if err := s.cache.Delete(ctx, imei); err != nil {
		log.WithError(err).WithField("imei", imei).Warn("Device cache invalidation failed")
	}
}

func validateIMEI(imei string) error {
	if imei == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIMEI)
	}
	if len(imei) > maxIMEILength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidIMEI, maxIMEILength)
	}
	return nil
}
