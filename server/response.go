package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/audioscribe/errors"
)

// RespondWithError writes err as {error, code, details}. Errors without an
// AppError in their chain become a generic 500.
func RespondWithError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, appErr.ToResponse())
}
