package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON binds the request body into out and, on failure, writes the
// error envelope with field-level detail. Returns false when the request
// was already answered.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err != nil {
		RespondBadRequest(ctx, "Invalid request body", bindErrors(err, out)...)

		return false
	}

	return true
}

func bindErrors(err error, out interface{}) []interface{} {
	// validator errors (struct bind tags)

	var validatorError validator.ValidationErrors

	if errors.As(err, &validatorError) {
		fields := make([]interface{}, 0, len(validatorError))

		for _, fieldError := range validatorError {
			rule := fieldError.Tag()
			param := fieldError.Param()

			fields = append(fields, FieldError{
				Field:   jsonFieldName(out, fieldError.Field()),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		return fields
	}

	// in the event of a type mismatch

	var unmatchedTypeError *json.UnmarshalTypeError

	if errors.As(err, &unmatchedTypeError) {
		return []interface{}{FieldError{
			Field:   unmatchedTypeError.Field,
			Rule:    "type",
			Message: fmt.Sprintf("must be of type %s", unmatchedTypeError.Type.String()),
		}}
	}

	// bad json or anything else the decoder could not place
	return []interface{}{gin.H{"reason": err.Error()}}
}

// jsonFieldName maps a struct field name back to its json tag so clients
// see the wire name, not the Go one.
func jsonFieldName(out interface{}, fieldName string) string {
	t := reflect.TypeOf(out)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return fieldName
	}

	sf, ok := t.FieldByName(fieldName)

	if !ok {
		return fieldName
	}

	tag := sf.Tag.Get("json")

	if tag == "" {
		return fieldName
	}

	name, _, _ := strings.Cut(tag, ",")

	if name == "" || name == "-" {
		return fieldName
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
