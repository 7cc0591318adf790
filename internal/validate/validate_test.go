package validate

import (
	"strings"
	"testing"
)

func TestValidateNoRuleIsPermissive(t *testing.T) {
	res := Validate("nickname", "  anything at all  ", RuleSet{})
	if !res.Valid {
		t.Errorf("field without a rule should be valid, got %q", res.Message)
	}
	if res.Value != "anything at all" {
		t.Errorf("expected trimmed value, got %q", res.Value)
	}
}

func TestValidateRequired(t *testing.T) {
	rules := RuleSet{"name": {Required: true, MinLen: 2}}

	res := Validate("name", "   ", rules)
	if res.Valid {
		t.Error("whitespace-only input should fail a required rule")
	}
	if res.Message != "name is required" {
		t.Errorf("unexpected message: %q", res.Message)
	}

	res = Validate("name", "Abel", rules)
	if !res.Valid || res.Value != "Abel" {
		t.Errorf("expected valid trimmed value, got %+v", res)
	}
}

func TestValidateOptionalEmptySkipsChecks(t *testing.T) {
	rules := RuleSet{"company": {MinLen: 2, MaxLen: 100, Pattern: `^[a-zA-Z0-9\s\-'&.,()]+$`}}
	res := Validate("company", "", rules)
	if !res.Valid || res.Value != "" {
		t.Errorf("optional empty field should be valid with empty value, got %+v", res)
	}
}

func TestValidateLengthBounds(t *testing.T) {
	rules := RuleSet{"name": {Required: true, MinLen: 2, MaxLen: 50}}

	res := Validate("name", "A", rules)
	if res.Valid || res.Message != "name must be at least 2 characters" {
		t.Errorf("expected min length rejection, got %+v", res)
	}

	res = Validate("name", strings.Repeat("a", 51), rules)
	if res.Valid || res.Message != "name cannot exceed 50 characters" {
		t.Errorf("expected max length rejection, got %+v", res)
	}
}

func TestValidatePattern(t *testing.T) {
	rules := RuleSet{"name": {Required: true, Pattern: `^[a-zA-Z\s\-']+$`}}

	res := Validate("name", "Abel123", rules)
	if res.Valid {
		t.Error("digits should fail the name pattern")
	}
	if res.Message != "name contains invalid characters" {
		t.Errorf("unexpected message: %q", res.Message)
	}

	res = Validate("name", "Anne-Marie O'Neil", rules)
	if !res.Valid {
		t.Errorf("hyphen and apostrophe should pass: %q", res.Message)
	}
}

func TestValidateInteger(t *testing.T) {
	rules := RuleSet{"quantity": {Required: true, Type: FieldTypeInteger}}

	res := Validate("quantity", "abc", rules)
	if res.Valid || res.Message != "quantity must be a number" {
		t.Errorf("expected number rejection, got %+v", res)
	}

	res = Validate("quantity", "0", rules)
	if res.Valid || res.Message != "quantity must be a positive number" {
		t.Errorf("expected positive rejection, got %+v", res)
	}

	res = Validate("quantity", "100001", rules)
	if res.Valid {
		t.Error("quantity above the cap should be rejected")
	}

	res = Validate("quantity", " 5 ", rules)
	if !res.Valid || res.Value != "5" {
		t.Errorf("expected normalized '5', got %+v", res)
	}
}

func TestValidateDate(t *testing.T) {
	rules := RuleSet{"delivery date": {Required: true, Type: FieldTypeDate}}

	cases := map[string]string{
		"2025-03-10": "2025-03-10",
		"10/03/2025": "2025-03-10",
		"10-03-2025": "2025-03-10",
		"10.03.2025": "2025-03-10",
	}
	for input, want := range cases {
		res := Validate("delivery date", input, rules)
		if !res.Valid {
			t.Errorf("%q should be a valid date: %q", input, res.Message)
			continue
		}
		if res.Value != want {
			t.Errorf("%q: expected normalized %q, got %q", input, want, res.Value)
		}
	}

	res := Validate("delivery date", "next tuesday", rules)
	if res.Valid {
		t.Error("free-form text should not be a valid date")
	}
}

func TestValidateContact(t *testing.T) {
	rules := RuleSet{"contact": {Required: true, Type: FieldTypeContact}}

	res := Validate("contact", "+251911000000", rules)
	if !res.Valid || res.Value != "+251911000000" {
		t.Errorf("phone number should be valid as entered, got %+v", res)
	}

	res = Validate("contact", "Abel@Example.COM", rules)
	if !res.Valid || res.Value != "abel@example.com" {
		t.Errorf("email should be valid and lowercased, got %+v", res)
	}

	res = Validate("contact", "call me maybe", rules)
	if res.Valid {
		t.Error("non-contact text should be rejected")
	}
	if res.Message != "contact must be a valid phone number or email address" {
		t.Errorf("unexpected message: %q", res.Message)
	}

	res = Validate("contact", "12345", rules)
	if res.Valid {
		t.Error("phone numbers shorter than 6 digits should be rejected")
	}
}

func TestValidateDatetime(t *testing.T) {
	rules := RuleSet{"preferred date/time": {Required: true, Type: FieldTypeDatetime}}

	res := Validate("preferred date/time", "25/12/2025 14:00", rules)
	if !res.Valid || res.Value != "25/12/2025 14:00" {
		t.Errorf("weekday business hours should pass unchanged, got %+v", res)
	}

	// 2025-12-27 is a Saturday.
	res = Validate("preferred date/time", "27/12/2025 14:00", rules)
	if !res.Valid || !strings.Contains(res.Value, "weekend") {
		t.Errorf("weekend slot should be annotated, got %+v", res)
	}

	res = Validate("preferred date/time", "25/12/2025 20:00", rules)
	if !res.Valid || !strings.Contains(res.Value, "outside business hours") {
		t.Errorf("evening slot should be annotated, got %+v", res)
	}

	res = Validate("preferred date/time", "next monday afternoon", rules)
	if !res.Valid || !strings.Contains(res.Value, "will confirm") {
		t.Errorf("free-form preference should be accepted with annotation, got %+v", res)
	}

	res = Validate("preferred date/time", "soon", rules)
	if res.Valid {
		t.Error("too-short free-form preference should be rejected")
	}
}

func TestValidateService(t *testing.T) {
	services := []string{"Business Cards", "Flyers/Brochures", "Banners/Posters"}
	rules := RuleSet{"product": {Required: true, Type: FieldTypeService, Services: services}}

	res := Validate("product", "2", rules)
	if !res.Valid || res.Value != "Flyers/Brochures" {
		t.Errorf("index selection failed: %+v", res)
	}

	res = Validate("product", "business cards", rules)
	if !res.Valid || res.Value != "Business Cards" {
		t.Errorf("exact name selection failed: %+v", res)
	}

	res = Validate("product", "banner", rules)
	if !res.Valid || res.Value != "Banners/Posters" {
		t.Errorf("unique substring selection failed: %+v", res)
	}

	res = Validate("product", "9", rules)
	if res.Valid {
		t.Error("out-of-range index should be rejected")
	}

	res = Validate("product", "s", rules)
	if res.Valid {
		t.Error("ambiguous substring should be rejected")
	}
}
