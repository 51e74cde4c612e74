package ratelimit

import (
	"fmt"
	"time"
)

// Action selects what a rate-limit call does.
type Action string

const (
	// ActionCheck reads the current counter without mutating it.
	ActionCheck Action = "check"

	// ActionIncrement counts one request; this is the gating call real
	// requests make.
	ActionIncrement Action = "increment"

	// ActionStatus is an explicit alias of check.
	ActionStatus Action = "status"

	// ActionReset force-deletes the key's counter. Administrative escape
	// hatch.
	ActionReset Action = "reset"
)

// Policy is one named limit: at most MaxRequests per fixed Window.
type Policy struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// DefaultPolicies returns the static limit table. Windows differ by
// abuse-sensitivity: password resets are rare and high-value, general API
// traffic is routine.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"auth":           {MaxRequests: 10, Window: 15 * time.Minute},
		"login":          {MaxRequests: 5, Window: 15 * time.Minute},
		"api":            {MaxRequests: 100, Window: time.Minute},
		"bulk":           {MaxRequests: 10, Window: time.Hour},
		"export":         {MaxRequests: 5, Window: time.Hour},
		"email":          {MaxRequests: 50, Window: time.Hour},
		"password_reset": {MaxRequests: 3, Window: time.Hour},
	}
}

// Key identifies one counter: a (limit-type, caller identifier, endpoint)
// triple.
type Key struct {
	LimitType  string
	Identifier string
	Endpoint   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.LimitType, k.Identifier, k.Endpoint)
}

// Entry is the persisted counter state for one key's active window.
type Entry struct {
	Key         Key
	Count       int
	WindowStart time.Time
	UpdatedAt   time.Time
}

// Decision is the outcome of a check or increment.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Count     int       `json:"count"`

	// RetryAfter is the whole seconds until the window resets; set only on
	// denial.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// Request is the wire shape of a rate-limit call.
type Request struct {
	Action     Action `json:"action"`
	Endpoint   string `json:"endpoint"`
	Identifier string `json:"identifier"`
	LimitType  string `json:"limitType"`
}
