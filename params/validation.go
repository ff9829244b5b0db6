package params

import (
	validator "gopkg.in/go-playground/validator.v9"
)

// NewValidator returns a new validator.Validate with the rpcurl tag registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("rpcurl", func(fl validator.FieldLevel) bool {
		return ParseScheme(fl.Field().String()) != SchemeUnknown
	})
	return validate
}
