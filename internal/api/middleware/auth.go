package middleware

import (
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"devicegateway/internal/api/util"
)

// SubjectKey is the fiber local holding the authenticated token subject.
const SubjectKey = "subject"

// RequireJWT rejects requests without a valid HS256 bearer token signed with secret.
func RequireJWT(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := util.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Authorization header required",
			})
		}

		subject, err := util.VerifyToken(secret, raw)
		if err != nil {
			log.WithError(err).WithField("path", c.Path()).Debug("Rejected bearer token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid authorization token",
			})
		}

		c.Locals(SubjectKey, subject)
		return c.Next()
	}
}
