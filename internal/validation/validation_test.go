package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "alice+tag@example.com", "x_y@sub.example.org"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false", e)
		}
	}

	invalid := []string{"", "no-at-sign", "two@@example.com", "spaces in@example.com", "noTLD@host"}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true", e)
		}
	}
}

func TestIsValidSlug(t *testing.T) {
	valid := []string{"starter", "business", "enterprise", "gold-2026", "x"}
	for _, s := range valid {
		if !IsValidSlug(s) {
			t.Errorf("IsValidSlug(%q) = false", s)
		}
	}

	invalid := []string{"", "UPPER", "-leading", "has space", "dots.here"}
	for _, s := range invalid {
		if IsValidSlug(s) {
			t.Errorf("IsValidSlug(%q) = true", s)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("email", ""),
		ValidSlug("plan", "BAD SLUG"),
		PositiveInt("amount", 0),
	)
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3", len(errs))
	}
	if errs.Error() == "" {
		t.Error("empty error string")
	}

	if errs := Validate(
		Required("email", "a@b.co"),
		ValidEmail("email", "a@b.co"),
		ValidSlug("plan", "starter"),
		PositiveInt("amount", 10),
	); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}
