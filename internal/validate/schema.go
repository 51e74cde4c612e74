package validate

import "regexp"

// FieldType is the declared primitive kind of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
	TypeUUID    FieldType = "uuid"
	TypeEmail   FieldType = "email"
	TypeURL     FieldType = "url"
	TypeDate    FieldType = "date"
	TypePhone   FieldType = "phone"
)

// Code identifies the class of a validation failure.
type Code string

const (
	CodeRequired        Code = "REQUIRED"
	CodeInvalidType     Code = "INVALID_TYPE"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeTooShort        Code = "TOO_SHORT"
	CodeTooLong         Code = "TOO_LONG"
	CodeOutOfRange      Code = "OUT_OF_RANGE"
	CodeInvalidEnum     Code = "INVALID_ENUM"
	CodePatternMismatch Code = "PATTERN_MISMATCH"
	CodeCustom          Code = "CUSTOM"
)

// FieldSchema declares the constraints on one field.
type FieldSchema struct {
	Type     FieldType
	Required bool

	// Nullable suppresses the REQUIRED error when the value is explicitly
	// null, and skips all further checks for null values.
	Nullable bool

	// MinLength/MaxLength bound string length, or element count for arrays.
	MinLength *int
	MaxLength *int

	// Min/Max bound numeric values inclusively.
	Min *float64
	Max *float64

	// Enum restricts a string to a fixed set.
	Enum []string

	// Pattern must match the whole of a string value.
	Pattern *regexp.Regexp

	// Items validates each array element.
	Items *FieldSchema

	// Properties validates nested object members.
	Properties Schema

	// Custom runs after all declarative checks and may report one more
	// failure by returning a non-empty message.
	Custom func(v Value) string

	// Sanitize opts a plain string field into HTML-escape sanitization.
	// Email and URL fields are always normalized regardless of this flag.
	Sanitize bool
}

// Schema maps field names to their declarations. Insertion order is
// irrelevant; validation walks fields in sorted order for determinism.
type Schema map[string]FieldSchema

// FieldError describes one violation. Field is the dotted/bracketed path of
// the offending value ("members[2].email").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    Code   `json:"code"`
	Value   any    `json:"-"`
}

// Result is the outcome of validating one payload against one schema.
// Valid holds exactly when Errors is empty; Sanitized is populated only in
// that case.
type Result struct {
	Valid     bool
	Errors    []FieldError
	Sanitized map[string]any
}

// IntPtr and FloatPtr are shorthand for bound literals in schema constants.
func IntPtr(n int) *int           { return &n }
func FloatPtr(f float64) *float64 { return &f }

// Format patterns for the string-shaped field types. These gate shape only;
// URL scheme safety is enforced again during sanitization.
var (
	uuidPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	urlPattern   = regexp.MustCompile(`^https?://\S+$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?)?$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9().\-\s]{7,20}$`)
)
