package router

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"devicegateway/internal/api/handler"
	"devicegateway/internal/api/middleware"
	"devicegateway/internal/core/service"
)

// EventHub is the broadcaster as seen by the HTTP surface.
type EventHub interface {
	handler.EventSource
	handler.SubscriberCounter
}

type Options struct {
	CORSOrigins string
	// JWTSecret enables bearer auth on device submissions when set.
	JWTSecret string
}

func NewRouter(
	deviceService service.DeviceService,
	sessions handler.SessionCounter,
	events EventHub,
	opts Options,
) *fiber.App {
	// Initialize handlers
	deviceHandler := handler.NewDeviceHandler(deviceService)
	statusHandler := handler.NewStatusHandler(sessions, events)
	streamHandler := handler.NewStreamHandler(events)

	app := fiber.New(fiber.Config{
		AppName:               "devicegateway",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	origins := opts.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.Logging())

	// Health endpoints
	app.Get("/api/status", statusHandler.Status)
	app.Get("/health", statusHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Device routes
	submit := []fiber.Handler{deviceHandler.Submit}
	if opts.JWTSecret != "" {
		submit = append([]fiber.Handler{middleware.RequireJWT(opts.JWTSecret)}, submit...)
	} else {
		log.Warn("JWT secret not configured, device submissions are unauthenticated")
	}
	app.Post("/api/device", submit...)
	app.Get("/api/devices", deviceHandler.List)
	app.Get("/api/devices/:imei", deviceHandler.Get)

	// Websocket push channel
	app.Use("/ws", streamHandler.Upgrade)
	app.Get("/ws", websocket.New(streamHandler.Serve))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("Unhandled HTTP error")
	}
	return c.Status(code).JSON(fiber.Map{"success": false, "message": err.Error()})
}
