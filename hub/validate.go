package hub

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("hub: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	if err := validate.RegisterValidation("repoid", func(fl validator.FieldLevel) bool {
		return validRepoID(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	if err := validate.RegisterValidation("cachepath", func(fl validator.FieldLevel) bool {
		return validCachePath(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// validRepoID accepts "name" or "org/name" style ids whose segments can be
// embedded in a cache folder name.
func validRepoID(id string) bool {
	if id == "" {
		return false
	}
	for seg := range strings.SplitSeq(id, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `\`) {
			return false
		}
	}
	return true
}

// validCachePath accepts slash-separated relative paths that stay inside
// the directory they are joined to.
func validCachePath(p string) bool {
	if p == "" || strings.ContainsRune(p, '\\') {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(p))
}

// Validate checks p against its declared tags.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		var fields FieldErrors
		for _, verror := range verrors {
			field := FieldError{
				Field: verror.Field(),
				Err:   customErrForTag(verror.Tag(), verror),
			}
			fields = append(fields, field)
		}
		return fields
	}

	return nil
}

// FieldError represents a single validation error for a specific field.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface, returning a human-readable
// summary of all field errors.
func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

func customErrForTag(tag string, verror validator.FieldError) string {
	switch tag {
	case "required":
		return "This field is required"
	case "repoid":
		return "must be a repository id such as org/name"
	case "cachepath":
		return "must be a relative path that stays inside the cache"
	default:
		return verror.Translate(translator)
	}
}
