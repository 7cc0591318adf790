// Package flow implements the multi-step interaction state machine for
// PrintFlow intake.
//
// A flow is a fixed, ordered list of prompt/rule steps for one flow
// kind. The engine walks a per-user session through the steps one input
// at a time, validating each answer, and only commits a record once the
// full sequence completes.
package flow

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/validate"
)

// DefaultServices is the printing service catalog offered by the
// product selection step. Deployments can override it via Register.
var DefaultServices = []string{
	"Business Cards",
	"Flyers/Brochures",
	"Banners/Posters",
	"Booklets/Catalogs",
	"Stickers/Labels",
	"Custom Printing",
}

// Step is one prompt/rule pair in a flow definition.
type Step struct {
	Field  string             `json:"field"`
	Prompt string             `json:"prompt"`
	Rule   validate.FieldRule `json:"rule"`
	// SkipWords are inputs that store an empty value for optional steps.
	SkipWords []string `json:"skip_words,omitempty"`
}

// Definition is the immutable step sequence for one flow kind.
type Definition struct {
	Kind  models.FlowKind `json:"kind"`
	Steps []Step          `json:"steps"`
}

// Rules returns the definition's field rules as a validate.RuleSet.
// Both adapters expose this set so client-side and server-side
// validation agree.
func (d Definition) Rules() validate.RuleSet {
	rules := make(validate.RuleSet, len(d.Steps))
	for _, step := range d.Steps {
		rules[step.Field] = step.Rule
	}
	return rules
}

var registry = make(map[models.FlowKind]Definition)

// Register associates a flow kind with its step definition, replacing
// any prior registration for that kind.
func Register(d Definition) {
	registry[d.Kind] = d
	slog.Debug("Flow Register", "kind", d.Kind, "steps", len(d.Steps))
}

// Get retrieves the Definition for a flow kind.
func Get(kind models.FlowKind) (Definition, bool) {
	d, ok := registry[kind]
	return d, ok
}

// Definitions returns all registered flow definitions keyed by kind.
func Definitions() map[models.FlowKind]Definition {
	out := make(map[models.FlowKind]Definition, len(registry))
	for k, d := range registry {
		out[k] = d
	}
	return out
}

// OrderDefinition builds the order flow over the given service catalog.
func OrderDefinition(services []string) Definition {
	return Definition{
		Kind: models.FlowKindOrder,
		Steps: []Step{
			{
				Field:  "name",
				Prompt: "Let's place your order. First, please tell me your full name:",
				Rule:   validate.FieldRule{Required: true, MinLen: 2, MaxLen: 50, Pattern: `^[a-zA-Z\s\-']+$`},
			},
			{
				Field:     "company",
				Prompt:    "Now, please tell me your company name (or type 'skip' if this is a personal order):",
				Rule:      validate.FieldRule{MaxLen: 100, Pattern: `^[a-zA-Z0-9\s\-'&.,()]+$`},
				SkipWords: []string{"skip", "none", "personal", "-"},
			},
			{
				Field:  "product",
				Prompt: servicesPrompt(services),
				Rule:   validate.FieldRule{Required: true, Type: validate.FieldTypeService, Services: services},
			},
			{
				Field:  "quantity",
				Prompt: "How many do you need? Please enter the quantity:",
				Rule:   validate.FieldRule{Required: true, Type: validate.FieldTypeInteger},
			},
			{
				Field:  "delivery date",
				Prompt: "When do you need this delivered? Please enter the delivery date (e.g. 2025-03-10 or 10/03/2025):",
				Rule:   validate.FieldRule{Required: true, Type: validate.FieldTypeDate},
			},
			{
				Field:  "contact",
				Prompt: "Finally, please provide your contact information (phone number or email address):",
				Rule:   validate.FieldRule{Required: true, Type: validate.FieldTypeContact},
			},
		},
	}
}

// ScheduleDefinition builds the consultation scheduling flow.
func ScheduleDefinition() Definition {
	return Definition{
		Kind: models.FlowKindSchedule,
		Steps: []Step{
			{
				Field:  "name",
				Prompt: "Let's schedule a consultation. Please tell me your full name:",
				Rule:   validate.FieldRule{Required: true, MinLen: 2, MaxLen: 50, Pattern: `^[a-zA-Z\s\-']+$`},
			},
			{
				Field:  "contact",
				Prompt: "Please provide your contact information (phone number or email address):",
				Rule:   validate.FieldRule{Required: true, Type: validate.FieldTypeContact},
			},
			{
				Field:  "preferred date/time",
				Prompt: "When would you like to talk? Please enter your preferred date and time (e.g. 25/12/2025 14:00):",
				Rule:   validate.FieldRule{Required: true, Type: validate.FieldTypeDatetime},
			},
		},
	}
}

// MessageDefinition builds the direct message flow.
func MessageDefinition() Definition {
	return Definition{
		Kind: models.FlowKindMessage,
		Steps: []Step{
			{
				Field:  "name",
				Prompt: "I'll pass your message to the team. Please tell me your full name:",
				Rule:   validate.FieldRule{Required: true, MinLen: 2, MaxLen: 50, Pattern: `^[a-zA-Z\s\-']+$`},
			},
			{
				Field:  "contact",
				Prompt: "Please provide your contact information (phone number or email address):",
				Rule:   validate.FieldRule{Required: true, Type: validate.FieldTypeContact},
			},
			{
				Field:  "message",
				Prompt: "What would you like to tell us? Please type your message:",
				Rule:   validate.FieldRule{Required: true, MinLen: 5, MaxLen: 1000},
			},
		},
	}
}

func servicesPrompt(services []string) string {
	prompt := "Which service do you need?\n"
	for i, svc := range services {
		prompt += fmt.Sprintf("%d. %s\n", i+1, svc)
	}
	prompt += "You can type the name or the number:"
	return prompt
}

// Register default flow definitions
func init() {
	Register(OrderDefinition(DefaultServices))
	Register(ScheduleDefinition())
	Register(MessageDefinition())
}
