package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/retina-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status   string      `json:"status"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithError maps err onto a status code and sends an error response.
// Internal failures never leak their cause to the client.
func RespondWithError(c *gin.Context, err error) {
	status, message := Classify(err)
	_ = c.Error(err)
	c.JSON(status, NewErrorResponse(message))
}

// RespondWithRedirect rejects a request and tells the client where to go.
func RespondWithRedirect(c *gin.Context, status int, message, location string) {
	resp := NewErrorResponse(message)
	resp.Redirect = location
	c.AbortWithStatusJSON(status, resp)
}

// Classify returns the status code and client-facing message for err.
func Classify(err error) (int, string) {
	if appErr, ok := errors.As(err); ok {
		status := appErr.StatusCode()
		if status == http.StatusInternalServerError {
			if appErr.Message != errors.InternalError.Message {
				return status, appErr.Message
			}
			return status, "Internal server error"
		}
		if appErr.Err != nil && appErr.Code == errors.ErrBadRequest {
			return status, appErr.Error()
		}
		return status, appErr.Message
	}
	if _, ok := err.(validator.ValidationErrors); ok {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}
