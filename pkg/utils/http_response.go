package utils

import (
	"net/http"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope every JSON endpoint answers with.
type JSONResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

func ResponseWithSuccess(
	c *gin.Context,
	statusCode int,
	message string,
	data interface{},
) {
	c.JSON(statusCode, JSONResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ResponseWithError(
	c *gin.Context,
	statusCode int,
	message string,
	errorDetails interface{},
) {
	c.JSON(statusCode, JSONResponse{
		Success: false,
		Message: message,
		Error:   errorDetails,
	})
}

// ResponseWithAppError answers with the status and message derived from
// err's apperr classification. Unclassified errors become a generic 500 so
// internal details never reach the client.
func ResponseWithAppError(c *gin.Context, err error, errorDetails interface{}) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		ResponseWithError(c, status, "Internal server error", nil)
		return
	}
	ResponseWithError(c, status, apperr.Message(err), errorDetails)
}
