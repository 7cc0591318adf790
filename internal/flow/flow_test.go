package flow

import (
	"strings"
	"testing"

	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/validate"
)

func TestDefaultRegistrations(t *testing.T) {
	for _, kind := range []models.FlowKind{models.FlowKindOrder, models.FlowKindSchedule, models.FlowKindMessage} {
		def, ok := Get(kind)
		if !ok {
			t.Fatalf("no definition registered for kind %q", kind)
		}
		if def.Kind != kind {
			t.Errorf("definition kind = %q, want %q", def.Kind, kind)
		}
		if len(def.Steps) == 0 {
			t.Errorf("definition for %q has no steps", kind)
		}
	}

	if _, ok := Get(models.FlowKind("bogus")); ok {
		t.Error("Get returned a definition for an unknown kind")
	}
}

func TestOrderDefinitionSteps(t *testing.T) {
	def, _ := Get(models.FlowKindOrder)
	wantFields := []string{"name", "company", "product", "quantity", "delivery date", "contact"}
	if len(def.Steps) != len(wantFields) {
		t.Fatalf("order flow has %d steps, want %d", len(def.Steps), len(wantFields))
	}
	for i, want := range wantFields {
		if def.Steps[i].Field != want {
			t.Errorf("step %d field = %q, want %q", i, def.Steps[i].Field, want)
		}
	}

	// Company is the only optional step and carries skip words.
	if def.Steps[1].Rule.Required {
		t.Error("company step should not be required")
	}
	if len(def.Steps[1].SkipWords) == 0 {
		t.Error("company step should carry skip words")
	}
	for i, step := range def.Steps {
		if i == 1 {
			continue
		}
		if len(step.SkipWords) != 0 {
			t.Errorf("step %q unexpectedly carries skip words", step.Field)
		}
	}
}

func TestServicesPromptListsCatalog(t *testing.T) {
	def, _ := Get(models.FlowKindOrder)
	prompt := def.Steps[2].Prompt
	for _, svc := range DefaultServices {
		if !strings.Contains(prompt, svc) {
			t.Errorf("services prompt missing %q", svc)
		}
	}
	if !strings.Contains(prompt, "1. Business Cards") {
		t.Error("services prompt missing numbered entries")
	}
}

func TestDefinitionRules(t *testing.T) {
	def, _ := Get(models.FlowKindMessage)
	rules := def.Rules()
	if len(rules) != len(def.Steps) {
		t.Fatalf("rules has %d entries, want %d", len(rules), len(def.Steps))
	}
	rule, ok := rules["message"]
	if !ok {
		t.Fatal("rules missing message field")
	}
	if rule.MinLen != 5 || rule.MaxLen != 1000 {
		t.Errorf("message rule bounds = %d..%d, want 5..1000", rule.MinLen, rule.MaxLen)
	}
}

func TestRegisterReplaces(t *testing.T) {
	orig, _ := Get(models.FlowKindOrder)
	defer Register(orig)

	custom := OrderDefinition([]string{"Posters"})
	Register(custom)
	def, _ := Get(models.FlowKindOrder)
	if len(def.Steps[2].Rule.Services) != 1 || def.Steps[2].Rule.Services[0] != "Posters" {
		t.Errorf("Register did not replace the order definition: %+v", def.Steps[2].Rule.Services)
	}
}

func TestDefinitionsSnapshot(t *testing.T) {
	defs := Definitions()
	if len(defs) != 3 {
		t.Fatalf("Definitions returned %d entries, want 3", len(defs))
	}
	// Mutating the snapshot must not affect the registry.
	delete(defs, models.FlowKindOrder)
	if _, ok := Get(models.FlowKindOrder); !ok {
		t.Error("mutating the Definitions snapshot affected the registry")
	}
}

func TestScheduleDefinitionUsesDatetimeRule(t *testing.T) {
	def, _ := Get(models.FlowKindSchedule)
	last := def.Steps[len(def.Steps)-1]
	if last.Rule.Type != validate.FieldTypeDatetime {
		t.Errorf("schedule final step type = %q, want %q", last.Rule.Type, validate.FieldTypeDatetime)
	}
}
