package httputil

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-records/pkg/errors"
)

// BindJSON decodes and validates the request body, turning binding failures
// into a validation error that lists the offending fields.
func BindJSON(c *gin.Context, obj interface{}) error {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
			msgs = append(msgs, describe(fe))
		}
		return errors.Validation(strings.Join(msgs, "; "), fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return errors.Validation(typeErr.Field+" has the wrong type", typeErr.Field)
	}
	if stderrors.Is(err, io.EOF) {
		return errors.Validation("request body is required")
	}
	return errors.Validation("invalid request body: " + err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "email":
		return fe.Field() + " must be a valid email"
	case "calendar_date":
		return fe.Field() + " must be a real date in YYYY-MM-DD format"
	default:
		return fe.Field() + " is invalid"
	}
}
