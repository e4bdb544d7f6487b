package httpapi

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/core"
	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code     string       `json:"code"`
	Category string       `json:"category"`
	Message  string       `json:"message"`
	Fields   []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorHandler renders echo and pipeline errors as JSON envelopes.
func ErrorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := renderError(err)
		if status >= http.StatusInternalServerError && logger != nil {
			logger.WithContext(c.Request().Context()).Error("http request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err.Error(),
			)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func renderError(err error) (int, errorBody) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if text, ok := httpErr.Message.(string); ok && text != "" {
			message = text
		}
		return httpErr.Code, errorBody{Error: errorPayload{
			Code:     http.StatusText(httpErr.Code),
			Category: "http",
			Message:  message,
		}}
	}

	rich := core.MapError(err)
	if rich == nil {
		rich = goerrors.New("An unexpected error occurred", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.InboxErrorInternal)
	}
	status := rich.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	payload := errorPayload{
		Code:     rich.TextCode,
		Category: string(rich.Category),
		Message:  rich.Message,
	}
	for _, field := range rich.AllValidationErrors() {
		payload.Fields = append(payload.Fields, fieldError{Field: field.Field, Message: field.Message})
	}
	return status, errorBody{Error: payload}
}
