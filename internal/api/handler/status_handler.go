package handler

import "github.com/gofiber/fiber/v2"

// SessionCounter reports live device sessions.
type SessionCounter interface {
	ActiveSessions() int
}

// SubscriberCounter reports attached event subscribers.
type SubscriberCounter interface {
	Count() int
}

type StatusHandler struct {
	sessions    SessionCounter
	subscribers SubscriberCounter
}

func NewStatusHandler(sessions SessionCounter, subscribers SubscriberCounter) *StatusHandler {
	return &StatusHandler{sessions: sessions, subscribers: subscribers}
}

func (h *StatusHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "API working fine"})
}

func (h *StatusHandler) Health(c *fiber.Ctx) error {
	sessions, subscribers := 0, 0
	if h.sessions != nil {
		sessions = h.sessions.ActiveSessions()
	}
	if h.subscribers != nil {
		subscribers = h.subscribers.Count()
	}
	return c.JSON(fiber.Map{
		"status":      "ok",
		"sessions":    sessions,
		"subscribers": subscribers,
	})
}
