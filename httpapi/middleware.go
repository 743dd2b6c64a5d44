package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dealflow/auth"
)

const (
	headerRequestID = "X-Request-ID"

	localsRequestID = "request_id"
	localsClaims    = "claims"
)

// accessLog assigns a request id and emits one entry per request. Errors from the
// chain are rendered here so the logged status is the one the client sees.
func accessLog(logger logrus.FieldLogger, render fiber.ErrorHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(headerRequestID, rid)
		c.Locals(localsRequestID, rid)

		err := c.Next()
		if err != nil {
			if rErr := render(c, err); rErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.WithFields(logrus.Fields{
			"rid":     rid,
			"method":  c.Method(),
			"path":    c.OriginalURL(),
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start).String(),
			"ip":      c.IP(),
		}).Info("http access")

		return nil
	}
}

// instrument records request metrics against the matched route pattern.
func instrument(m Recorder) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		m.RequestStarted()

		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		status := c.Response().StatusCode()
		if err != nil {
			status, _ = normalizeError(err)
		}
		m.RequestFinished(c.Method(), route, status, time.Since(start))
		return err
	}
}

// requireAuth rejects requests without a bearer token (401) or with a token that
// fails verification (403). Verified claims are stored in the request locals.
func requireAuth(tokens TokenVerifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, ok := bearerTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return NewAppError(fiber.StatusUnauthorized, msgMissingToken, nil)
		}

		// Expired and forged tokens are reported alike.
		claims, err := tokens.VerifyToken(token)
		if err != nil {
			return NewAppError(fiber.StatusForbidden, msgInvalidToken, err)
		}

		c.Locals(localsClaims, claims)
		return c.Next()
	}
}

func bearerTokenFromHeader(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func claimsFrom(c fiber.Ctx) (auth.Claims, bool) {
	claims, ok := c.Locals(localsClaims).(auth.Claims)
	return claims, ok
}

func requestID(c fiber.Ctx) string {
	rid, _ := c.Locals(localsRequestID).(string)
	return rid
}
