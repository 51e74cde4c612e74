package validate

import (
	"html"
	"net/url"
	"strings"
)

const maxEmailLength = 254

// SanitizeString HTML-escapes s and strips control characters other than tab
// and newline. The result is safe for storage and later display.
func SanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return html.EscapeString(b.String())
}

// SanitizeEmail trims, lower-cases, and length-caps an email address.
func SanitizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > maxEmailLength {
		s = s[:maxEmailLength]
	}
	return s
}

// SanitizeURL reconstructs a URL through the canonical parser and rejects
// anything that is not http or https, returning "". This runs even for
// values that already passed the url format pattern: the pattern gates shape
// only, not scheme safety.
func SanitizeURL(s string) string {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// sanitizeObject builds the sanitized mapping for a clean payload. Unknown
// fields are carried through or dropped per the validator's policy.
func (v *Validator) sanitizeObject(obj Value, schema Schema) map[string]any {
	out := make(map[string]any, len(obj.Fields()))

	for name, fs := range schema {
		val, present := obj.Field(name)
		if !present {
			continue
		}
		out[name] = v.sanitizeField(fs, val)
	}

	if v.unknown == UnknownAllow {
		for name, val := range obj.Fields() {
			if _, declared := schema[name]; !declared {
				out[name] = val.ToAny()
			}
		}
	}

	return out
}

func (v *Validator) sanitizeField(fs FieldSchema, val Value) any {
	if val.IsNull() {
		return nil
	}

	switch fs.Type {
	case TypeEmail:
		return SanitizeEmail(val.Str())
	case TypeURL:
		return SanitizeURL(val.Str())
	case TypeString:
		if fs.Sanitize {
			return SanitizeString(val.Str())
		}
		return val.Str()
	case TypeArray:
		items := val.Items()
		out := make([]any, len(items))
		for i, item := range items {
			if fs.Items != nil {
				out[i] = v.sanitizeField(*fs.Items, item)
			} else {
				out[i] = item.ToAny()
			}
		}
		return out
	case TypeObject:
		if fs.Properties != nil {
			return v.sanitizeObject(val, fs.Properties)
		}
		return val.ToAny()
	}

	return val.ToAny()
}
