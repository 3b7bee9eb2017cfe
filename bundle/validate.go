package bundle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"xdao.co/canonproof/hashfmt"
)

// validate is shared by every projection type. Custom tags:
//
//	prefixed_hash  strict "sha256:<64 lowercase hex>"
//	bare_hash      strict "<64 lowercase hex>"
//	sorted_unique  string slice in ascending order without duplicates
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("prefixed_hash", func(fl validator.FieldLevel) bool {
		return hashfmt.IsPrefixed(fl.Field().String())
	})
	_ = validate.RegisterValidation("bare_hash", func(fl validator.FieldLevel) bool {
		return hashfmt.IsBare(fl.Field().String())
	})
	_ = validate.RegisterValidation("sorted_unique", validateSortedUnique)
}

func validateSortedUnique(fl validator.FieldLevel) bool {
	ss, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for i := 1; i < len(ss); i++ {
		if ss[i-1] >= ss[i] {
			return false
		}
	}
	return true
}

// shapeError flattens validator errors into one message naming every field.
func shapeError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidBundle, strings.Join(parts, "; "))
}

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return shapeError(err)
	}
	return nil
}
