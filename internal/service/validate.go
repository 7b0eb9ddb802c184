package service

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateInput(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%v: %w", err, appErr.ErrInvalid)
	}
	return nil
}
