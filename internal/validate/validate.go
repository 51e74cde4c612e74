package validate

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/dj-pearson/gym-unity-edge/internal/log"
)

// UnknownFieldPolicy controls what happens to payload fields absent from the
// schema.
type UnknownFieldPolicy int

const (
	// UnknownAllow accepts unknown fields and carries them into the
	// sanitized output untouched. They are logged as a monitoring signal.
	UnknownAllow UnknownFieldPolicy = iota

	// UnknownStrip accepts unknown fields but drops them from the sanitized
	// output.
	UnknownStrip

	// UnknownReject fails validation on any unknown field.
	UnknownReject
)

// Validator checks payloads against declared schemas. Validation is pure with
// respect to its inputs: the same payload and schema always produce the same
// Result.
type Validator struct {
	unknown UnknownFieldPolicy
	logger  *slog.Logger
}

// New creates a Validator with the given unknown-field policy.
func New(policy UnknownFieldPolicy) *Validator {
	return &Validator{
		unknown: policy,
		logger:  log.WithComponent("validate"),
	}
}

// Validate checks payload against schema, collecting every violation rather
// than stopping at the first. Sanitized output is computed only when the
// payload is fully clean.
func (v *Validator) Validate(payload Value, schema Schema) Result {
	if payload.Kind() != KindObject {
		return Result{
			Valid: false,
			Errors: []FieldError{{
				Field:   "",
				Message: "payload must be a JSON object",
				Code:    CodeInvalidType,
				Value:   payload.ToAny(),
			}},
		}
	}

	errs := v.validateObject("", payload, schema)
	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}

	return Result{
		Valid:     true,
		Errors:    nil,
		Sanitized: v.sanitizeObject(payload, schema),
	}
}

// validateObject walks declared fields in sorted order and applies the
// unknown-field policy to the rest.
func (v *Validator) validateObject(prefix string, obj Value, schema Schema) []FieldError {
	var errs []FieldError

	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fs := schema[name]
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		val, present := obj.Field(name)
		if !present {
			if fs.Required {
				errs = append(errs, FieldError{
					Field:   path,
					Message: "field is required",
					Code:    CodeRequired,
				})
			}
			continue
		}
		errs = append(errs, v.validateField(path, fs, val)...)
	}

	for _, name := range obj.FieldNames() {
		if _, declared := schema[name]; declared {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		switch v.unknown {
		case UnknownReject:
			errs = append(errs, FieldError{
				Field:   path,
				Message: "unexpected field",
				Code:    CodeCustom,
			})
		default:
			// Permissive-but-observed: accepted, but visible in logs.
			v.logger.Warn("unexpected field in payload", "field", path)
		}
	}

	return errs
}

// validateField applies every applicable check to one value. String
// constraint violations accumulate independently; a single value can trigger
// several errors at once.
func (v *Validator) validateField(path string, fs FieldSchema, val Value) []FieldError {
	if val.IsNull() {
		if fs.Nullable {
			return nil
		}
		if fs.Required {
			return []FieldError{{Field: path, Message: "field must not be null", Code: CodeRequired}}
		}
		return []FieldError{{Field: path, Message: "field must not be null", Code: CodeInvalidType}}
	}

	switch fs.Type {
	case TypeString, TypeUUID, TypeEmail, TypeURL, TypeDate, TypePhone:
		if val.Kind() != KindString {
			return v.typeError(path, fs, val)
		}
		return append(v.validateString(path, fs, val.Str()), v.runCustom(path, fs, val)...)

	case TypeNumber:
		if val.Kind() != KindNumber {
			return v.typeError(path, fs, val)
		}
		return append(v.validateNumber(path, fs, val.Num()), v.runCustom(path, fs, val)...)

	case TypeBoolean:
		if val.Kind() != KindBool {
			return v.typeError(path, fs, val)
		}
		return v.runCustom(path, fs, val)

	case TypeArray:
		if val.Kind() != KindArray {
			return v.typeError(path, fs, val)
		}
		return append(v.validateArray(path, fs, val), v.runCustom(path, fs, val)...)

	case TypeObject:
		if val.Kind() != KindObject {
			return v.typeError(path, fs, val)
		}
		var errs []FieldError
		if fs.Properties != nil {
			errs = v.validateObject(path, val, fs.Properties)
		}
		return append(errs, v.runCustom(path, fs, val)...)
	}

	return []FieldError{{
		Field:   path,
		Message: fmt.Sprintf("unknown schema type %q", fs.Type),
		Code:    CodeInvalidType,
	}}
}

func (v *Validator) typeError(path string, fs FieldSchema, val Value) []FieldError {
	return []FieldError{{
		Field:   path,
		Message: fmt.Sprintf("expected %s, got %s", fs.Type, val.Kind()),
		Code:    CodeInvalidType,
		Value:   val.ToAny(),
	}}
}

func (v *Validator) validateString(path string, fs FieldSchema, s string) []FieldError {
	var errs []FieldError

	if format := formatPatternFor(fs.Type); format != nil && !format.MatchString(s) {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("not a valid %s", fs.Type),
			Code:    CodeInvalidFormat,
			Value:   s,
		})
	}
	if fs.MinLength != nil && len(s) < *fs.MinLength {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("must be at least %d characters", *fs.MinLength),
			Code:    CodeTooShort,
			Value:   s,
		})
	}
	if fs.MaxLength != nil && len(s) > *fs.MaxLength {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("must be at most %d characters", *fs.MaxLength),
			Code:    CodeTooLong,
			Value:   s,
		})
	}
	if fs.Pattern != nil && !fs.Pattern.MatchString(s) {
		errs = append(errs, FieldError{
			Field:   path,
			Message: "does not match required pattern",
			Code:    CodePatternMismatch,
			Value:   s,
		})
	}
	if len(fs.Enum) > 0 && !contains(fs.Enum, s) {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("must be one of %v", fs.Enum),
			Code:    CodeInvalidEnum,
			Value:   s,
		})
	}
	return errs
}

func (v *Validator) validateNumber(path string, fs FieldSchema, n float64) []FieldError {
	var errs []FieldError
	if fs.Min != nil && n < *fs.Min {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("must be at least %v", *fs.Min),
			Code:    CodeOutOfRange,
			Value:   n,
		})
	}
	if fs.Max != nil && n > *fs.Max {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("must be at most %v", *fs.Max),
			Code:    CodeOutOfRange,
			Value:   n,
		})
	}
	return errs
}

func (v *Validator) validateArray(path string, fs FieldSchema, val Value) []FieldError {
	var errs []FieldError
	items := val.Items()

	if fs.MinLength != nil && len(items) < *fs.MinLength {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("must have at least %d items", *fs.MinLength),
			Code:    CodeTooShort,
		})
	}
	if fs.MaxLength != nil && len(items) > *fs.MaxLength {
		errs = append(errs, FieldError{
			Field:   path,
			Message: fmt.Sprintf("must have at most %d items", *fs.MaxLength),
			Code:    CodeTooLong,
		})
	}
	if fs.Items != nil {
		for i, item := range items {
			errs = append(errs, v.validateField(fmt.Sprintf("%s[%d]", path, i), *fs.Items, item)...)
		}
	}
	return errs
}

// runCustom executes the field's custom validator last; it may add at most
// one error.
func (v *Validator) runCustom(path string, fs FieldSchema, val Value) []FieldError {
	if fs.Custom == nil {
		return nil
	}
	if msg := fs.Custom(val); msg != "" {
		return []FieldError{{
			Field:   path,
			Message: msg,
			Code:    CodeCustom,
			Value:   val.ToAny(),
		}}
	}
	return nil
}

func formatPatternFor(t FieldType) *regexp.Regexp {
	switch t {
	case TypeUUID:
		return uuidPattern
	case TypeEmail:
		return emailPattern
	case TypeURL:
		return urlPattern
	case TypeDate:
		return datePattern
	case TypePhone:
		return phonePattern
	}
	return nil
}

func contains(set []string, s string) bool {
	for _, item := range set {
		if item == s {
			return true
		}
	}
	return false
}
