package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"devicegateway/internal/core/model"
	"devicegateway/internal/core/service"
)

// onlineWindow is how recently a device must have been seen to count as online.
const onlineWindow = 5 * time.Minute

type DeviceHandler struct {
	deviceService service.DeviceService
}

func NewDeviceHandler(deviceService service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

type submitRequest struct {
	IMEI string `json:"imei"`
	Data string `json:"data"`
}

type deviceResponse struct {
	*model.Device
	Status string `json:"status"`
}

func newDeviceResponse(d *model.Device, now time.Time) deviceResponse {
	return deviceResponse{Device: d, Status: d.Status(now, onlineWindow)}
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Submit accepts an out-of-band device payload and records it in the directory.
func (h *DeviceHandler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(apiResponse{Message: "Invalid request body"})
	}
	if strings.TrimSpace(req.IMEI) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(apiResponse{Message: "imei is required"})
	}

	if _, err := h.deviceService.Submit(c.UserContext(), req.IMEI, req.Data); err != nil {
		if errors.Is(err, service.ErrInvalidIMEI) {
			return c.Status(fiber.StatusBadRequest).JSON(apiResponse{Message: err.Error()})
		}
		log.WithError(err).WithField("imei", req.IMEI).Error("Failed to record device submission")
		return c.Status(fiber.StatusInternalServerError).JSON(apiResponse{Message: "Failed to record data"})
	}

	log.WithFields(log.Fields{"imei": req.IMEI, "bytes": len(req.Data)}).Info("Device data received")
	return c.JSON(apiResponse{Success: true, Message: "Data received"})
}

func (h *DeviceHandler) List(c *fiber.Ctx) error {
	devices, err := h.deviceService.ListDevices(c.UserContext())
	if err != nil {
		log.WithError(err).Error("Failed to list devices")
		return c.Status(fiber.StatusInternalServerError).JSON(apiResponse{Message: "Failed to list devices"})
	}
	now := time.Now()
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, newDeviceResponse(d, now))
	}
	return c.JSON(out)
}

func (h *DeviceHandler) Get(c *fiber.Ctx) error {
	imei := c.Params("imei")
	device, err := h.deviceService.GetDevice(c.UserContext(), imei)
	if err != nil {
		if errors.Is(err, service.ErrInvalidIMEI) {
			return c.Status(fiber.StatusBadRequest).JSON(apiResponse{Message: err.Error()})
		}
		log.WithError(err).WithField("imei", imei).Error("Failed to get device")
		return c.Status(fiber.StatusInternalServerError).JSON(apiResponse{Message: "Failed to get device"})
	}
	if device == nil {
		return c.Status(fiber.StatusNotFound).JSON(apiResponse{Message: "Device not found"})
	}
	return c.JSON(newDeviceResponse(device, time.Now()))
}
