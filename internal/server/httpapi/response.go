package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/threadcraft/threadcraft/internal/common"
)

// failure is the error envelope returned on every non-2xx response.
type failure struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func ok(c echo.Context, payload echo.Map) error {
	payload["success"] = true
	return c.JSON(http.StatusOK, payload)
}

func okData(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": data})
}

func failWith(c echo.Context, status int, code, message string) error {
	return c.JSON(status, failure{ErrorCode: code, Message: message})
}

// fail maps a sentinel error to the wire taxonomy. Unknown errors never leak
// their text to the client.
func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrPostTooLong):
		return failWith(c, http.StatusBadRequest, "TWEET_TOO_LONG",
			"Your post is too long. Please shorten it to 280 characters or less.")
	case errors.Is(err, common.ErrValidation):
		return failWith(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, common.ErrSessionInvalid):
		return failWith(c, http.StatusUnauthorized, "SESSION_EXPIRED",
			"Your session has expired. Please reconfigure your API keys.")
	case errors.Is(err, common.ErrNoCredentials):
		return failWith(c, http.StatusUnauthorized, "NO_SESSION",
			"Please configure your settings first to start using the app.")
	case errors.Is(err, common.ErrDecryptionFailed):
		return failWith(c, http.StatusUnauthorized, "INVALID_CREDENTIALS",
			"Unable to decrypt your credentials. Please reconfigure your API keys.")
	case errors.Is(err, common.ErrAuthInvalid):
		return failWith(c, http.StatusUnauthorized, "AUTHENTICATION_FAILED",
			"Your X/Twitter API credentials appear to be invalid. Please check your API keys in settings.")
	case errors.Is(err, common.ErrPermissionDenied):
		return failWith(c, http.StatusForbidden, "PERMISSION_DENIED",
			"Your X/Twitter account does not have permission for this action.")
	case errors.Is(err, common.ErrRateLimited):
		return failWith(c, http.StatusTooManyRequests, "RATE_LIMITED",
			"You've hit the X/Twitter rate limit. Please wait a few minutes before trying again.")
	case errors.Is(err, common.ErrDuplicatePost):
		return failWith(c, http.StatusConflict, "DUPLICATE_TWEET",
			"This post appears to be a duplicate. Please modify your content and try again.")
	case errors.Is(err, common.ErrNoActiveThread):
		return failWith(c, http.StatusBadRequest, "NO_THREAD",
			"No active thread found. Please start a new thread first.")
	case errors.Is(err, common.ErrNotFound):
		return failWith(c, http.StatusNotFound, "THREAD_NOT_FOUND",
			"Thread not found. Please check the thread ID or URL.")
	case errors.Is(err, common.ErrDayConflict):
		return failWith(c, http.StatusConflict, "DAY_CONFLICT",
			"Progress changed concurrently. Please check the thread status and try again.")
	case errors.Is(err, common.ErrStoreUnavailable):
		return failWith(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
			"The progress store is temporarily unavailable. Please try again later.")
	case errors.Is(err, common.ErrRemoteUnavailable):
		return failWith(c, http.StatusBadGateway, "CONNECTION_ERROR",
			"Unable to connect to X/Twitter. Please check your connection and try again.")
	default:
		return failWith(c, http.StatusInternalServerError, "SERVER_ERROR",
			"An unexpected error occurred. Please try again later.")
	}
}
