// Package validate checks parsed request payloads against declared schemas,
// produces sanitized output safe for storage and display, and scans raw
// payloads for injection, XSS, and path-traversal indicators.
//
// Validation collects every violation rather than stopping at the first, so
// a 400 response can enumerate each failing field. The security scan is
// independent of schema validation and must short-circuit the request on any
// hit.
package validate
