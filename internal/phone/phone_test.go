package phone

import (
	"errors"
	"testing"
)

func TestNormalizeEquivalentForms(t *testing.T) {
	inputs := []string{
		"+1 (555) 123-4567",
		"15551234567",
		"555-123-4567",
		"+15551234567",
		" 1.555.123.4567 ",
	}
	for _, in := range inputs {
		got, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got != "+15551234567" {
			t.Fatalf("Normalize(%q) = %q, want +15551234567", in, got)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize("(555) 123-4567")
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}
	second, err := Normalize(first)
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if first != second {
		t.Fatalf("normalize not idempotent: %q vs %q", first, second)
	}
}

func TestNormalizeInternational(t *testing.T) {
	got, err := Normalize("+44 20 7946 0958")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != "+442079460958" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"", ErrNotAPhoneNumber},
		{"call me maybe", ErrNotAPhoneNumber},
		{"12345", ErrTooShort},
		{"12345678901234567890", ErrTooLong},
	}
	for _, tc := range cases {
		if _, err := Normalize(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("Normalize(%q) err = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid("+15551234567") {
		t.Fatal("expected valid")
	}
	if Valid("nope") {
		t.Fatal("expected invalid")
	}
}
