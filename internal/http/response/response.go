package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/brandpulse-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = apierr.Message(err)
	}
	c.JSON(status, ErrorEnvelope{
		Success: false,
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps a service error onto its HTTP status. Internal
// errors are attached to the context for logging and hidden from the client.
func RespondServiceError(c *gin.Context, err error) {
	status, code := apierr.Status(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		RespondError(c, status, code, errors.New("internal server error"))
		return
	}
	RespondError(c, status, code, err)
}

// RespondOK writes payload with success:true merged in.
func RespondOK(c *gin.Context, payload gin.H) {
	Respond(c, http.StatusOK, payload)
}

func Respond(c *gin.Context, status int, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["success"] = true
	c.JSON(status, payload)
}
