package validate

import (
	"reflect"
	"regexp"
	"testing"
)

func memberSchema() Schema {
	return Schema{
		"name": {
			Type:      TypeString,
			Required:  true,
			MinLength: IntPtr(2),
			MaxLength: IntPtr(100),
			Sanitize:  true,
		},
		"email": {Type: TypeEmail, Required: true},
		"age": {
			Type: TypeNumber,
			Min:  FloatPtr(16),
			Max:  FloatPtr(120),
		},
		"plan": {
			Type: TypeString,
			Enum: []string{"basic", "premium", "family"},
		},
		"website":  {Type: TypeURL},
		"active":   {Type: TypeBoolean},
		"joined":   {Type: TypeDate},
		"phone":    {Type: TypePhone},
		"memberId": {Type: TypeUUID},
		"tags": {
			Type:      TypeArray,
			MaxLength: IntPtr(5),
			Items:     &FieldSchema{Type: TypeString, MaxLength: IntPtr(20)},
		},
		"address": {
			Type: TypeObject,
			Properties: Schema{
				"city": {Type: TypeString, Required: true},
				"zip":  {Type: TypeString, Pattern: regexp.MustCompile(`^\d{5}$`)},
			},
		},
	}
}

func mustParse(t *testing.T, raw string) Value {
	t.Helper()
	v, err := ParseJSON([]byte(raw))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	return v
}

func codesByField(res Result) map[string][]Code {
	out := make(map[string][]Code)
	for _, e := range res.Errors {
		out[e.Field] = append(out[e.Field], e.Code)
	}
	return out
}

func TestValidateCleanPayload(t *testing.T) {
	payload := mustParse(t, `{
		"name": "Dana Smith",
		"email": "Dana@Example.COM",
		"age": 29,
		"plan": "premium",
		"website": "https://example.com/profile",
		"active": true,
		"joined": "2024-03-01",
		"phone": "+1 (555) 123-4567",
		"memberId": "123e4567-e89b-12d3-a456-426614174000",
		"tags": ["yoga", "spin"],
		"address": {"city": "Austin", "zip": "78701"}
	}`)

	res := New(UnknownAllow).Validate(payload, memberSchema())
	if !res.Valid {
		t.Fatalf("expected valid, got errors: %+v", res.Errors)
	}
	if res.Sanitized == nil {
		t.Fatal("sanitized data missing on valid result")
	}
	for _, field := range []string{"name", "email"} {
		if _, ok := res.Sanitized[field]; !ok {
			t.Errorf("required field %q missing from sanitized data", field)
		}
	}
	if got := res.Sanitized["email"]; got != "dana@example.com" {
		t.Errorf("email not normalized: %v", got)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	payload := mustParse(t, `{
		"email": "not-an-email",
		"age": 12,
		"plan": "gold",
		"tags": ["one", "two", "three", "four", "five", "six"],
		"address": {"zip": "abc"}
	}`)

	res := New(UnknownAllow).Validate(payload, memberSchema())
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Sanitized != nil {
		t.Error("sanitized data must be absent on invalid result")
	}

	codes := codesByField(res)
	want := map[string]Code{
		"name":        CodeRequired,
		"email":       CodeInvalidFormat,
		"age":         CodeOutOfRange,
		"plan":        CodeInvalidEnum,
		"tags":        CodeTooLong,
		"address.city": CodeRequired,
		"address.zip": CodePatternMismatch,
	}
	for field, code := range want {
		if !hasCode(codes[field], code) {
			t.Errorf("field %q: want code %s, got %v", field, code, codes[field])
		}
	}
}

func hasCode(codes []Code, want Code) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}

func TestValidateStringAccumulatesIndependently(t *testing.T) {
	schema := Schema{
		"code": {
			Type:      TypeString,
			MinLength: IntPtr(10),
			Pattern:   regexp.MustCompile(`^[A-Z]+$`),
			Enum:      []string{"ALPHAALPHA", "BRAVOBRAVO"},
		},
	}
	res := New(UnknownAllow).Validate(mustParse(t, `{"code": "abc"}`), schema)
	if res.Valid {
		t.Fatal("expected invalid")
	}

	codes := codesByField(res)["code"]
	for _, want := range []Code{CodeTooShort, CodePatternMismatch, CodeInvalidEnum} {
		if !hasCode(codes, want) {
			t.Errorf("missing code %s in %v", want, codes)
		}
	}
}

func TestValidateArrayElementPaths(t *testing.T) {
	schema := Schema{
		"emails": {
			Type:  TypeArray,
			Items: &FieldSchema{Type: TypeEmail},
		},
	}
	res := New(UnknownAllow).Validate(mustParse(t, `{"emails": ["ok@example.com", "bad", "also-bad"]}`), schema)
	if res.Valid {
		t.Fatal("expected invalid")
	}

	codes := codesByField(res)
	if !hasCode(codes["emails[1]"], CodeInvalidFormat) {
		t.Errorf("missing error at emails[1]: %v", codes)
	}
	if !hasCode(codes["emails[2]"], CodeInvalidFormat) {
		t.Errorf("missing error at emails[2]: %v", codes)
	}
	if len(codes["emails[0]"]) != 0 {
		t.Errorf("unexpected error at emails[0]: %v", codes["emails[0]"])
	}
}

func TestValidateNullable(t *testing.T) {
	schema := Schema{
		"nickname": {Type: TypeString, Required: true, Nullable: true},
		"plan":     {Type: TypeString, Required: true},
	}

	res := New(UnknownAllow).Validate(mustParse(t, `{"nickname": null, "plan": null}`), schema)
	codes := codesByField(res)
	if len(codes["nickname"]) != 0 {
		t.Errorf("nullable field rejected on explicit null: %v", codes["nickname"])
	}
	if !hasCode(codes["plan"], CodeRequired) {
		t.Errorf("non-nullable null not rejected: %v", codes["plan"])
	}
}

func TestValidateCustomValidatorRunsLast(t *testing.T) {
	schema := Schema{
		"slug": {
			Type:      TypeString,
			MinLength: IntPtr(20),
			Custom: func(v Value) string {
				if v.Str() == "reserved" {
					return "slug is reserved"
				}
				return ""
			},
		},
	}
	res := New(UnknownAllow).Validate(mustParse(t, `{"slug": "reserved"}`), schema)
	codes := codesByField(res)["slug"]
	if !hasCode(codes, CodeTooShort) || !hasCode(codes, CodeCustom) {
		t.Errorf("want TOO_SHORT and CUSTOM, got %v", codes)
	}
}

func TestValidateUnknownFieldPolicies(t *testing.T) {
	schema := Schema{"name": {Type: TypeString, Required: true}}
	payload := mustParse(t, `{"name": "Dana", "extra": "surprise"}`)

	t.Run("allow keeps the field", func(t *testing.T) {
		res := New(UnknownAllow).Validate(payload, schema)
		if !res.Valid {
			t.Fatalf("unexpected errors: %+v", res.Errors)
		}
		if res.Sanitized["extra"] != "surprise" {
			t.Error("unknown field missing from sanitized data under Allow")
		}
	})

	t.Run("strip drops the field", func(t *testing.T) {
		res := New(UnknownStrip).Validate(payload, schema)
		if !res.Valid {
			t.Fatalf("unexpected errors: %+v", res.Errors)
		}
		if _, ok := res.Sanitized["extra"]; ok {
			t.Error("unknown field present in sanitized data under Strip")
		}
	})

	t.Run("reject fails validation", func(t *testing.T) {
		res := New(UnknownReject).Validate(payload, schema)
		if res.Valid {
			t.Fatal("expected invalid under Reject")
		}
	})
}

func TestValidateIsIdempotent(t *testing.T) {
	payload := mustParse(t, `{"email": "nope", "age": 150}`)
	v := New(UnknownAllow)
	schema := memberSchema()

	first := v.Validate(payload, schema)
	for i := 0; i < 5; i++ {
		again := v.Validate(payload, schema)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestValidateNonObjectPayload(t *testing.T) {
	res := New(UnknownAllow).Validate(mustParse(t, `[1,2,3]`), memberSchema())
	if res.Valid {
		t.Fatal("array payload accepted")
	}
	if res.Errors[0].Code != CodeInvalidType {
		t.Errorf("want INVALID_TYPE, got %s", res.Errors[0].Code)
	}
}

func TestValidInvariant(t *testing.T) {
	// Valid iff errors empty; sanitized present iff valid.
	cases := []string{
		`{"name": "Dana", "email": "dana@example.com"}`,
		`{"email": "x"}`,
	}
	schema := Schema{
		"name":  {Type: TypeString, Required: true},
		"email": {Type: TypeEmail, Required: true},
	}
	for _, raw := range cases {
		res := New(UnknownAllow).Validate(mustParse(t, raw), schema)
		if res.Valid != (len(res.Errors) == 0) {
			t.Errorf("invariant broken for %s: valid=%v errors=%d", raw, res.Valid, len(res.Errors))
		}
		if res.Valid != (res.Sanitized != nil) {
			t.Errorf("sanitized presence does not track validity for %s", raw)
		}
	}
}
