package password

import (
	"errors"
	"strings"
	"testing"
)

func TestPolicyCheck(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name string
		pw   string
		ok   bool
	}{
		{"strong", "Abcdef1!", true},
		{"accented letters count", "Sénha#2024", true},
		{"too short", "Ab1!", false},
		{"too long", "Aa1!" + strings.Repeat("x", 125), false},
		{"no upper", "abcdef1!", false},
		{"no lower", "ABCDEF1!", false},
		{"no digit", "Abcdefg!", false},
		{"no symbol", "Abcdefg1", false},
		{"symbol outside set", "Abcdefg1?", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.pw)
			if tt.ok && err != nil {
				t.Fatalf("expected %q to pass: %v", tt.pw, err)
			}
			if !tt.ok && !errors.Is(err, ErrWeakPassword) {
				t.Fatalf("expected ErrWeakPassword for %q, got %v", tt.pw, err)
			}
		})
	}
}

func TestZeroPolicyAcceptsAnything(t *testing.T) {
	if err := (Policy{}).Check("x"); err != nil {
		t.Fatalf("zero policy should accept: %v", err)
	}
}
