package phone

import (
	"errors"
	"testing"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		cc   string
		want string
	}{
		{"uk national", "7700900000", "+44", "+447700900000"},
		{"uk trunk zero", "07700 900000", "+44", "+447700900000"},
		{"code without plus", "7700900000", "44", "+447700900000"},
		{"code with 00", "7700900000", "0044", "+447700900000"},
		{"us with separators", "(212) 555-1234", "+1", "+12125551234"},
		{"already international", "+358 40 1234567", "+44", "+358401234567"},
		{"three digit code", "401234567", "+358", "+358401234567"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compose(tc.raw, tc.cc)
			if err != nil {
				t.Fatalf("Compose(%q, %q): %v", tc.raw, tc.cc, err)
			}
			if got != tc.want {
				t.Errorf("Compose(%q, %q) = %q, want %q", tc.raw, tc.cc, got, tc.want)
			}
		})
	}
}

func TestCompose_Empty(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		if _, err := Compose(raw, "+44"); !errors.Is(err, ErrEmpty) {
			t.Errorf("Compose(%q) err = %v, want ErrEmpty", raw, err)
		}
	}
}

func TestCompose_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		cc   string
	}{
		{"letters", "77009abc", "+44"},
		{"unknown code", "7700900000", "+999"},
		{"empty code", "7700900000", ""},
		{"too short", "12", "+44"},
		{"too long", "1234567890123456", "+44"},
		{"international unknown code", "+999123456789", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compose(tc.raw, tc.cc); !errors.Is(err, ErrInvalid) {
				t.Errorf("Compose(%q, %q) err = %v, want ErrInvalid", tc.raw, tc.cc, err)
			}
		})
	}
}

func TestSplit_LongestPrefix(t *testing.T) {
	tests := []struct {
		in           string
		wantCC       string
		wantNational string
	}{
		{"+447700900000", "+44", "7700900000"},
		{"+12125551234", "+1", "2125551234"},
		{"+358401234567", "+358", "401234567"},
		{"+212612345678", "+212", "612345678"},
		{"+201001234567", "+20", "1001234567"},
		{"+79161234567", "+7", "9161234567"},
	}
	for _, tc := range tests {
		cc, national, ok := Split(tc.in)
		if !ok {
			t.Errorf("Split(%q) ok = false", tc.in)
			continue
		}
		if cc != tc.wantCC || national != tc.wantNational {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tc.in, cc, national, tc.wantCC, tc.wantNational)
		}
	}
}

func TestSplit_Unknown(t *testing.T) {
	for _, in := range []string{"", "+", "+999", "abc"} {
		if _, _, ok := Split(in); ok {
			t.Errorf("Split(%q) ok = true, want false", in)
		}
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+447700900123"); got != "+44******0123" {
		t.Errorf("Mask = %q, want %q", got, "+44******0123")
	}
	if got := Mask("123"); got != "123" {
		t.Errorf("Mask short = %q, want unchanged", got)
	}
}
