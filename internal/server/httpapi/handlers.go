package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/orchestrator"
)

type (
	sessionHandler struct {
		orch *orchestrator.Service
	}

	threadHandler struct {
		orch *orchestrator.Service
	}

	startThreadParams struct {
		IntroText string `json:"intro_text"`
	}

	continueThreadParams struct {
		ThreadID string `json:"thread_id"`
	}

	postParams struct {
		Body string `json:"body"`
		Link string `json:"link"`
	}

	setDayParams struct {
		Day int64 `json:"day"`
	}
)

// Create validates the submitted credentials against the platform and hands
// back the session handle. The credentials themselves never appear in any
// response.
func (h *sessionHandler) Create(c echo.Context) error {
	var bundle models.CredentialBundle
	if err := c.Bind(&bundle); err != nil {
		return failWith(c, http.StatusBadRequest, "MISSING_CREDENTIALS", "Invalid request body.")
	}

	conn, err := h.orch.Connect(c.Request().Context(), &bundle)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			return failWith(c, http.StatusBadRequest, "MISSING_CREDENTIALS",
				"Please provide all required API keys.")
		}
		return fail(c, err)
	}

	return ok(c, echo.Map{
		"session_id": conn.Handle,
		"expires_in": int64(conn.TTL / time.Second),
		"message":    "Successfully connected to X/Twitter! You can now start posting.",
	})
}

// Validate reports liveness without an error status; a stale handle is a
// normal answer here, not a failure.
func (h *sessionHandler) Validate(c echo.Context) error {
	handle := c.Request().Header.Get(common.SessionHeaderName)

	err := h.orch.Validate(c.Request().Context(), handle)
	switch {
	case err == nil:
		return ok(c, echo.Map{"valid": true, "message": "Session is active."})
	case errors.Is(err, common.ErrSessionInvalid):
		return c.JSON(http.StatusOK, echo.Map{
			"success": false,
			"valid":   false,
			"message": "No active session found. Please configure your API keys.",
		})
	default:
		return fail(c, err)
	}
}

func (h *sessionHandler) Destroy(c echo.Context) error {
	handle := c.Request().Header.Get(common.SessionHeaderName)

	if err := h.orch.Disconnect(c.Request().Context(), handle); err != nil {
		return fail(c, err)
	}
	return ok(c, echo.Map{"message": "Session ended. Your credentials have been securely removed."})
}

func (h *sessionHandler) UserInfo(c echo.Context) error {
	profile, err := h.orch.Profile(c.Request().Context(), sessionHandle(c))
	if err != nil {
		return fail(c, err)
	}

	return okData(c, echo.Map{
		"id":                profile.ID,
		"username":          profile.Username,
		"name":              profile.Name,
		"profile_image_url": profile.ImageURL,
	})
}

func (h *threadHandler) Progress(c echo.Context) error {
	status, err := h.orch.Status(c.Request().Context(), sessionHandle(c))
	if err != nil {
		return fail(c, err)
	}

	return okData(c, echo.Map{
		"current_day":       status.CurrentDay,
		"next_day":          status.NextDay,
		"has_active_thread": status.HasActiveThread,
		"thread_id":         status.ThreadRef,
		"degraded":          status.Degraded,
	})
}

func (h *threadHandler) Reset(c echo.Context) error {
	if err := h.orch.Reset(c.Request().Context(), sessionHandle(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, echo.Map{"message": "Progress has been reset. You can now start a new thread."})
}

func (h *threadHandler) SetDay(c echo.Context) error {
	var params setDayParams
	if err := c.Bind(&params); err != nil {
		return failWith(c, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request body.")
	}

	if err := h.orch.SetDay(c.Request().Context(), sessionHandle(c), params.Day); err != nil {
		return fail(c, err)
	}
	return ok(c, echo.Map{"message": fmt.Sprintf("Day counter set to %d.", params.Day)})
}

func (h *threadHandler) Start(c echo.Context) error {
	var params startThreadParams
	if err := c.Bind(&params); err != nil {
		return failWith(c, http.StatusBadRequest, "EMPTY_CONTENT", "Invalid request body.")
	}
	if strings.TrimSpace(params.IntroText) == "" {
		return failWith(c, http.StatusBadRequest, "EMPTY_CONTENT",
			"Please enter some text for your thread introduction.")
	}

	threadRef, err := h.orch.StartThread(c.Request().Context(), sessionHandle(c), params.IntroText)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, echo.Map{
		"message": "Thread started successfully! You can now post Day 1.",
		"data": echo.Map{
			"thread_id": threadRef,
			"tweet_url": postURL(threadRef),
		},
	})
}

func (h *threadHandler) Continue(c echo.Context) error {
	var params continueThreadParams
	if err := c.Bind(&params); err != nil {
		return failWith(c, http.StatusBadRequest, "MISSING_THREAD_ID", "Invalid request body.")
	}
	if strings.TrimSpace(params.ThreadID) == "" {
		return failWith(c, http.StatusBadRequest, "MISSING_THREAD_ID",
			"Please provide a thread ID or URL.")
	}

	res, err := h.orch.ContinueThread(c.Request().Context(), sessionHandle(c), params.ThreadID)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, echo.Map{
		"message": fmt.Sprintf("Thread resumed! Found %d day(s) of progress. Ready to post Day %d.",
			res.CurrentDay, res.NextDay),
		"data": echo.Map{
			"thread_id":   res.ThreadRef,
			"current_day": res.CurrentDay,
			"next_day":    res.NextDay,
			"tweet_url":   postURL(res.ThreadRef),
		},
	})
}

func (h *threadHandler) PostNext(c echo.Context) error {
	var params postParams
	if err := c.Bind(&params); err != nil {
		return failWith(c, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request body.")
	}
	if strings.TrimSpace(params.Body) == "" {
		return failWith(c, http.StatusBadRequest, "EMPTY_CONTENT",
			"Please provide the content for this day's post.")
	}

	out, err := h.orch.PostNext(c.Request().Context(), sessionHandle(c), params.Body, params.Link)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, echo.Map{
		"message": fmt.Sprintf("Day %d posted successfully!", out.Day),
		"data": echo.Map{
			"day":        out.Day,
			"tweet_id":   out.PostID,
			"tweet_url":  postURL(out.PostID),
			"tweet_text": out.Text,
		},
	})
}

func (h *threadHandler) Preview(c echo.Context) error {
	var params postParams
	if err := c.Bind(&params); err != nil {
		return failWith(c, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request body.")
	}

	preview, err := h.orch.PreviewNext(c.Request().Context(), sessionHandle(c), params.Body, params.Link)
	if err != nil {
		return fail(c, err)
	}

	return okData(c, echo.Map{
		"preview":         preview.Text,
		"character_count": preview.Characters,
		"is_valid":        preview.Valid,
		"day":             preview.Day,
	})
}

func postURL(id string) string {
	return "https://x.com/user/status/" + id
}
