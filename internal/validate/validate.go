// Package validate implements pure, per-field input validation for
// PrintFlow intake flows.
//
// Rules are data (JSON-serializable) so the web adapter can expose the
// exact same rule sets to its clients, keeping client-side and
// server-side validation in agreement. All checks are deterministic and
// safe for concurrent use from any number of sessions.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Validation constants shared by all flows
const (
	// MaxQuantity is the upper bound accepted for order quantities.
	MaxQuantity = 100000
	// ISODateLayout is the normalized form every accepted date is converted to.
	ISODateLayout = "2006-01-02"
)

// FieldType selects the typed check applied after the generic rule checks.
type FieldType string

const (
	// FieldTypeText applies no typed check.
	FieldTypeText FieldType = "text"
	// FieldTypeInteger requires a positive base-10 integer.
	FieldTypeInteger FieldType = "integer"
	// FieldTypeDate requires a calendar date, normalized to ISO form.
	FieldTypeDate FieldType = "date"
	// FieldTypeContact requires a phone number or email address.
	FieldTypeContact FieldType = "contact"
	// FieldTypeDatetime accepts a structured or free-form date/time preference.
	FieldTypeDatetime FieldType = "datetime"
	// FieldTypeService requires a selection from the service catalog.
	FieldTypeService FieldType = "service"
)

// FieldRule describes the constraints for a single input field.
type FieldRule struct {
	Required bool      `json:"required"`
	MinLen   int       `json:"min_length,omitempty"`
	MaxLen   int       `json:"max_length,omitempty"`
	Pattern  string    `json:"pattern,omitempty"`
	Type     FieldType `json:"type,omitempty"`
	Services []string  `json:"services,omitempty"` // catalog for service fields
}

// RuleSet maps field names to their rules.
type RuleSet map[string]FieldRule

// Result is the outcome of validating one field value.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	// Value is the trimmed, normalized value to store when Valid is true.
	Value string `json:"value,omitempty"`
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneStrip   = regexp.MustCompile(`[\s\-()+]`)
	phonePattern = regexp.MustCompile(`^[0-9]{6,15}$`)
)

// dateLayouts are tried in order; first successful parse wins, so
// day-first forms take precedence over the US month-first form.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006",
}

var datetimeLayouts = []string{
	"02/01/2006 15:04",
	"02-01-2006 15:04",
	"2006-01-02 15:04",
	"02/01/2006 3:04 PM",
}

// patternCache holds compiled rule patterns keyed by their source text.
var patternCache sync.Map // string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func rejected(format string, args ...interface{}) Result {
	return Result{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// Validate checks a single field value against the rule set. Checks run
// in a fixed order and short-circuit on the first failure: required,
// minimum length, maximum length, pattern, typed check. A field with no
// rule in the set is always valid (permissive default).
func Validate(field, raw string, rules RuleSet) Result {
	value := strings.TrimSpace(raw)

	rule, ok := rules[field]
	if !ok {
		return Result{Valid: true, Value: value}
	}

	if value == "" {
		if rule.Required {
			return rejected("%s is required", field)
		}
		// Optional and empty: nothing left to check.
		return Result{Valid: true, Value: ""}
	}

	if rule.MinLen > 0 && len(value) < rule.MinLen {
		return rejected("%s must be at least %d characters", field, rule.MinLen)
	}
	if rule.MaxLen > 0 && len(value) > rule.MaxLen {
		return rejected("%s cannot exceed %d characters", field, rule.MaxLen)
	}
	if rule.Pattern != "" {
		re, err := compilePattern(rule.Pattern)
		if err != nil {
			return rejected("%s has an invalid validation rule", field)
		}
		if !re.MatchString(value) {
			return rejected("%s contains invalid characters", field)
		}
	}

	switch rule.Type {
	case FieldTypeInteger:
		return checkInteger(field, value)
	case FieldTypeDate:
		return checkDate(field, value)
	case FieldTypeContact:
		return checkContact(field, value)
	case FieldTypeDatetime:
		return checkDatetime(field, value)
	case FieldTypeService:
		return checkService(field, value, rule.Services)
	}
	return Result{Valid: true, Value: value}
}

func checkInteger(field, value string) Result {
	n, err := strconv.Atoi(value)
	if err != nil {
		return rejected("%s must be a number", field)
	}
	if n <= 0 {
		return rejected("%s must be a positive number", field)
	}
	if n > MaxQuantity {
		return rejected("%s cannot exceed %d", field, MaxQuantity)
	}
	return Result{Valid: true, Value: strconv.Itoa(n)}
}

func checkDate(field, value string) Result {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return Result{Valid: true, Value: parsed.Format(ISODateLayout)}
		}
	}
	return rejected("%s must be a valid date (e.g. 2025-03-10 or 10/03/2025)", field)
}

func checkContact(field, value string) Result {
	if emailPattern.MatchString(value) {
		return Result{Valid: true, Value: strings.ToLower(value)}
	}
	digits := phoneStrip.ReplaceAllString(value, "")
	if phonePattern.MatchString(digits) {
		return Result{Valid: true, Value: value}
	}
	return rejected("%s must be a valid phone number or email address", field)
}

// checkDatetime accepts structured date/time input and annotates values
// that fall outside business hours; free-form text long enough to carry
// a preference is accepted and flagged for manual confirmation.
func checkDatetime(field, value string) Result {
	for _, layout := range datetimeLayouts {
		parsed, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if parsed.Weekday() == time.Saturday || parsed.Weekday() == time.Sunday {
			return Result{Valid: true, Value: value + " (weekend - will confirm availability)"}
		}
		if parsed.Hour() < 8 || parsed.Hour() > 18 {
			return Result{Valid: true, Value: value + " (outside business hours - will confirm availability)"}
		}
		return Result{Valid: true, Value: value}
	}
	if len(value) >= 5 {
		return Result{Valid: true, Value: value + " (will confirm specific time)"}
	}
	return rejected("%s must describe a preferred date and time (e.g. 25/12/2025 14:00)", field)
}

// checkService resolves a catalog selection by 1-based index, exact
// name, or unique case-insensitive substring.
func checkService(field, value string, services []string) Result {
	if len(services) == 0 {
		return Result{Valid: true, Value: value}
	}

	if idx, err := strconv.Atoi(value); err == nil {
		if idx >= 1 && idx <= len(services) {
			return Result{Valid: true, Value: services[idx-1]}
		}
		return rejected("%s must be between 1 and %d", field, len(services))
	}

	lowered := strings.ToLower(value)
	for _, svc := range services {
		if strings.ToLower(svc) == lowered {
			return Result{Valid: true, Value: svc}
		}
	}

	var matches []string
	for _, svc := range services {
		if strings.Contains(strings.ToLower(svc), lowered) {
			matches = append(matches, svc)
		}
	}
	if len(matches) == 1 {
		return Result{Valid: true, Value: matches[0]}
	}
	return rejected("%s must be one of the listed services", field)
}
