package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/proteintune/internal/config"
)

func writeUnavailable(c *echo.Context, msg string) error {
	return writeError(c, http.StatusServiceUnavailable, "unavailable_error", msg, nil)
}

func writeError(c *echo.Context, status int, errType, msg string, violations []Violation) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message:    msg,
			Type:       errType,
			Violations: violations,
		},
	})
}

// writeConfigError reports a rejected document. Contract violations map to
// 422 with one entry per field; anything else is a server error.
func writeConfigError(c *echo.Context, msg string, err error) error {
	if errors.Is(err, ErrNoConfig) {
		return writeUnavailable(c, err.Error())
	}
	fes := config.Violations(err)
	if len(fes) == 0 {
		return writeError(c, http.StatusInternalServerError, "server_error", msg+": "+err.Error(), nil)
	}
	return writeError(c, http.StatusUnprocessableEntity, "config_error", msg, toViolations(fes))
}

func toViolations(fes []*config.FieldError) []Violation {
	out := make([]Violation, 0, len(fes))
	for _, fe := range fes {
		m := fe.Msg
		if fe.Err != nil {
			m += ": " + fe.Err.Error()
		}
		out = append(out, Violation{Code: fe.Code(), Field: fe.Field, Message: m})
	}
	return out
}
