package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"dealflow/auth"
	"dealflow/deal"
	"dealflow/referral"
)

const (
	msgServerError        = "Server error"
	msgMissingToken       = "Access denied. No token provided."
	msgInvalidToken       = "Invalid token"
	msgInvalidCredentials = "Invalid email or password"
	msgDuplicateEmail     = "User with this email already exists"
	msgBadRequest         = "Invalid request body"
	msgNotFound           = "Not found"
	msgTooManyRequests    = "Too many requests, please try again later"
)

// AppError carries the status and client-visible message of a failed request.
// Cause is logged, never rendered.
type AppError struct {
	Status  int
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(status int, message string, cause error) *AppError {
	return &AppError{Status: status, Message: message, Cause: cause}
}

type errorBody struct {
	Message string `json:"message"`
}

// errorHandler renders every error as {"message": ...}. 5xx responses never
// expose the underlying cause.
func errorHandler(logger logrus.FieldLogger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status, msg := normalizeError(err)
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"rid":    requestID(c),
				"method": c.Method(),
				"path":   c.Path(),
			}).WithError(err).Error("request failed")
		}
		return c.Status(status).JSON(errorBody{Message: msg})
	}
}

func normalizeError(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Status <= 0 || appErr.Status >= fiber.StatusInternalServerError {
			return fiber.StatusInternalServerError, msgServerError
		}
		msg := appErr.Message
		if msg == "" {
			msg = defaultMessageForStatus(appErr.Status)
		}
		return appErr.Status, msg
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		if fiberErr.Code <= 0 || fiberErr.Code >= fiber.StatusInternalServerError {
			return fiber.StatusInternalServerError, msgServerError
		}
		return fiberErr.Code, defaultMessageForStatus(fiberErr.Code)
	}

	return fiber.StatusInternalServerError, msgServerError
}

func defaultMessageForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return msgBadRequest
	case fiber.StatusUnauthorized:
		return msgMissingToken
	case fiber.StatusForbidden:
		return msgInvalidToken
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return msgNotFound
	case fiber.StatusTooManyRequests:
		return msgTooManyRequests
	default:
		return msgServerError
	}
}

// domainError maps service sentinels to HTTP errors. Unknown errors become 500.
func domainError(err error) error {
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		return NewAppError(fiber.StatusBadRequest, msgDuplicateEmail, err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return NewAppError(fiber.StatusUnauthorized, msgInvalidCredentials, err)
	case errors.Is(err, auth.ErrWeakPassword):
		return NewAppError(fiber.StatusBadRequest, "Password must be between 8 and 72 characters", err)
	case errors.Is(err, auth.ErrInvalidInput):
		return NewAppError(fiber.StatusBadRequest, "Name, email and password are required", err)
	case errors.Is(err, referral.ErrMissingField), errors.Is(err, deal.ErrMissingField):
		return NewAppError(fiber.StatusBadRequest, "Required field missing", err)
	case errors.Is(err, referral.ErrInvalidStatus):
		return NewAppError(fiber.StatusBadRequest, "Invalid referral status", err)
	case errors.Is(err, deal.ErrInvalidStage):
		return NewAppError(fiber.StatusBadRequest, "Invalid deal stage", err)
	case errors.Is(err, deal.ErrInvalidValue):
		return NewAppError(fiber.StatusBadRequest, "Deal value must be a non-negative number with at most 15 digits and 2 decimals", err)
	case errors.Is(err, deal.ErrInvalidReferralID):
		return NewAppError(fiber.StatusBadRequest, "Invalid referral id", err)
	case errors.Is(err, deal.ErrInvalidCloseDate):
		return NewAppError(fiber.StatusBadRequest, "Expected close date must be YYYY-MM-DD", err)
	default:
		return NewAppError(fiber.StatusInternalServerError, msgServerError, err)
	}
}
