package validate

import (
	"fmt"
	"regexp"
)

// ThreatType classifies a security-scan hit.
type ThreatType string

const (
	ThreatSQLInjection  ThreatType = "sql_injection"
	ThreatXSS           ThreatType = "xss"
	ThreatPathTraversal ThreatType = "path_traversal"
)

// Threat is one adversarial-input indicator found in a payload.
type Threat struct {
	Type ThreatType `json:"type"`
	Path string     `json:"path"`
}

// ScanResult reports whether a payload is safe to pass on. Any threat means
// the request must be short-circuited before business logic; these are
// attack indicators, not data-quality issues.
type ScanResult struct {
	Safe    bool
	Threats []Threat
}

// Heuristic patterns. These are deliberately loose: a false positive costs a
// rejected request, a false negative costs an injection.
var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)('\s*(or|and)\s+['\w]+\s*=|union\s+select|select\s+.+\s+from\s|insert\s+into\s|delete\s+from\s|drop\s+(table|database)\s|update\s+\w+\s+set\s|;\s*(select|insert|update|delete|drop)\b|--\s*$)`)
	xssPattern          = regexp.MustCompile(`(?i)(<\s*script\b|<\s*/\s*script|javascript\s*:|\bon[a-z]+\s*=)`)
	traversalPattern    = regexp.MustCompile(`\.\./|\.\.\\`)
)

// Scan walks every string leaf of a payload, including strings nested inside
// arrays and objects, and tests each against the injection, XSS, and
// path-traversal heuristics. It runs on the raw payload, independent of any
// schema.
func Scan(payload Value) ScanResult {
	var threats []Threat
	scanValue("", payload, &threats)
	return ScanResult{Safe: len(threats) == 0, Threats: threats}
}

func scanValue(path string, v Value, threats *[]Threat) {
	switch v.Kind() {
	case KindString:
		scanString(path, v.Str(), threats)
	case KindArray:
		for i, item := range v.Items() {
			scanValue(fmt.Sprintf("%s[%d]", path, i), item, threats)
		}
	case KindObject:
		for _, name := range v.FieldNames() {
			childPath := name
			if path != "" {
				childPath = path + "." + name
			}
			field, _ := v.Field(name)
			scanValue(childPath, field, threats)
		}
	}
}

func scanString(path, s string, threats *[]Threat) {
	if sqlInjectionPattern.MatchString(s) {
		*threats = append(*threats, Threat{Type: ThreatSQLInjection, Path: path})
	}
	if xssPattern.MatchString(s) {
		*threats = append(*threats, Threat{Type: ThreatXSS, Path: path})
	}
	if traversalPattern.MatchString(s) {
		*threats = append(*threats, Threat{Type: ThreatPathTraversal, Path: path})
	}
}
