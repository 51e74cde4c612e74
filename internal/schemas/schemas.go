// Package schemas holds the field declarations for payloads accepted at the
// edge. Schemas are code, not config: a schema change is a reviewed deploy.
package schemas

import (
	"regexp"

	"github.com/dj-pearson/gym-unity-edge/internal/validate"
)

var tenantSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Member is a member signup or profile update.
func Member() validate.Schema {
	return validate.Schema{
		"email":     {Type: validate.TypeEmail, Required: true},
		"firstName": {Type: validate.TypeString, Required: true, MinLength: validate.IntPtr(1), MaxLength: validate.IntPtr(100), Sanitize: true},
		"lastName":  {Type: validate.TypeString, Required: true, MinLength: validate.IntPtr(1), MaxLength: validate.IntPtr(100), Sanitize: true},
		"phone":     {Type: validate.TypePhone, Nullable: true},
		"birthDate": {Type: validate.TypeDate, Nullable: true},
		"tenantId":  {Type: validate.TypeUUID, Required: true},
	}
}

// Lead is a lead-capture form submission.
func Lead() validate.Schema {
	return validate.Schema{
		"email":    {Type: validate.TypeEmail, Required: true},
		"name":     {Type: validate.TypeString, Required: true, MaxLength: validate.IntPtr(200), Sanitize: true},
		"phone":    {Type: validate.TypePhone, Nullable: true},
		"source":   {Type: validate.TypeString, Enum: []string{"web", "referral", "walk-in", "social"}},
		"message":  {Type: validate.TypeString, MaxLength: validate.IntPtr(2000), Sanitize: true},
		"tenantId": {Type: validate.TypeUUID, Required: true},
	}
}

// PaymentEvent is a payment-provider event envelope.
func PaymentEvent() validate.Schema {
	return validate.Schema{
		"id":   {Type: validate.TypeString, Required: true, MaxLength: validate.IntPtr(255)},
		"type": {Type: validate.TypeString, Required: true, MaxLength: validate.IntPtr(100)},
		"data": {Type: validate.TypeObject, Required: true},
		"amount": {
			Type: validate.TypeNumber,
			Min:  validate.FloatPtr(0),
			Max:  validate.FloatPtr(1_000_000),
		},
		"currency": {Type: validate.TypeString, Enum: []string{"usd", "eur", "gbp", "cad", "aud"}},
		"created":  {Type: validate.TypeNumber},
	}
}

// Tenant is tenant provisioning input.
func Tenant() validate.Schema {
	return validate.Schema{
		"name": {Type: validate.TypeString, Required: true, MinLength: validate.IntPtr(2), MaxLength: validate.IntPtr(100), Sanitize: true},
		"slug": {Type: validate.TypeString, Required: true, Pattern: tenantSlugPattern},
		"plan": {Type: validate.TypeString, Required: true, Enum: []string{"starter", "growth", "enterprise"}},
		"adminEmail": {
			Type:     validate.TypeEmail,
			Required: true,
		},
		"website": {Type: validate.TypeURL, Nullable: true},
	}
}

// ClassBooking is a class reservation request.
func ClassBooking() validate.Schema {
	return validate.Schema{
		"memberId": {Type: validate.TypeUUID, Required: true},
		"classId":  {Type: validate.TypeUUID, Required: true},
		"date":     {Type: validate.TypeDate, Required: true},
		"guests": {
			Type: validate.TypeNumber,
			Min:  validate.FloatPtr(0),
			Max:  validate.FloatPtr(5),
		},
		"notes": {Type: validate.TypeString, MaxLength: validate.IntPtr(500), Sanitize: true},
	}
}

// All returns every named schema available to webhook config.
func All() map[string]validate.Schema {
	return map[string]validate.Schema{
		"member":        Member(),
		"lead":          Lead(),
		"payment_event": PaymentEvent(),
		"tenant":        Tenant(),
		"class_booking": ClassBooking(),
	}
}
