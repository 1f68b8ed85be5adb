package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/careloop/careteam/pkg/errors"
	"github.com/careloop/careteam/pkg/validator"
)

// bindAndValidate decodes the JSON body into dst and runs struct validation.
// Failures come back as 400 AppErrors ready for the response envelope.
func bindAndValidate(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.NewBadRequest("invalid request body")
	}
	if err := validator.ValidateStruct(dst); err != nil {
		var failures validator.ValidationErrors
		if errors.As(err, &failures) {
			return apperrors.NewBadRequest(failures.Error())
		}
		return apperrors.NewBadRequest("invalid request body")
	}
	return nil
}
