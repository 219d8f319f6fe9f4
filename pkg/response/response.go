package response

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Message: "Invalid request body. Please check the data you are sending.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Message: "The requested resource was not found.",
}

var PermissionDeniedResponse = Response{
	Status:  StatusError,
	Message: "You don't have permission to manage this resource.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Message: "An internal server error occurred. Please try again later.",
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

func ErrorResponse(msg string) Response {
	return Response{
		Status:  StatusError,
		Message: msg,
	}
}

// ValidationErrorResponse converts validator errors into a response with one
// detail entry per failed field.
func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Message: "Validation failed. Please check the data you are sending.",
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fieldErr := range validationErrs {
			resp.Details = append(resp.Details,
				fmt.Sprintf("Field '%s' failed on the '%s' rule.", fieldErr.Field(), fieldErr.Tag()))
		}
	}

	return resp
}
