package schema

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestValidateState_Success(t *testing.T) {
	enc := "tuple(address owner, uint8 turn, int16 score, bool done, bytes32 root, string label, uint256[] amounts)"
	state := map[string]any{
		"owner":   "0x00000000000000000000000000000000000000cc",
		"turn":    json.Number("255"),
		"score":   -3,
		"done":    false,
		"root":    "0x" + "ab00000000000000000000000000000000000000000000000000000000000000",
		"label":   "tic-tac-toe",
		"amounts": []any{float64(1), "1000000000000000000000", big.NewInt(7)},
	}
	if err := ValidateState(enc, state); err != nil {
		t.Errorf("ValidateState() error = %v, want nil", err)
	}
}

func TestValidateState_Failures(t *testing.T) {
	tests := []struct {
		name  string
		state map[string]any
		key   string
	}{
		{"Missing", map[string]any{}, "turn"},
		{"Overflow", map[string]any{"turn": 256}, "turn"},
		{"Negative Unsigned", map[string]any{"turn": -1}, "turn"},
		{"Fraction", map[string]any{"turn": 1.5}, "turn"},
		{"Wrong Kind", map[string]any{"turn": true}, "turn"},
		{"Extra Key", map[string]any{"turn": 1, "winner": 2}, "winner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateState("tuple(uint8 turn)", tt.state)
			errs := ValidationErrors(err)
			if len(errs) != 1 {
				t.Fatalf("ValidateState() = %v, want one failure", err)
			}
			var verr *ValidationError
			if !errors.As(errs[0], &verr) || verr.Key != tt.key {
				t.Errorf("failure = %v, want key %q", errs[0], tt.key)
			}
		})
	}
}

func TestValidate_Bytes(t *testing.T) {
	s := Schema{"owner": Address(), "blob": Bytes(0)}
	err := Validate(s, map[string]any{
		"owner": "0x1234",
		"blob":  "beef",
	})
	if got := len(ValidationErrors(err)); got != 2 {
		t.Fatalf("Validate() = %v, want 2 failures", err)
	}
}

func TestValidate_FixedArray(t *testing.T) {
	s := Schema{"board": Array(Uint(8), 3)}
	if err := Validate(s, map[string]any{"board": []int{0, 1, 2}}); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := Validate(s, map[string]any{"board": []int{0, 1}}); err == nil {
		t.Error("Validate() accepted a short array")
	}
	if err := Validate(s, map[string]any{"board": []int{0, 1, 300}}); err == nil {
		t.Error("Validate() accepted an out-of-range element")
	}
}

func TestValidate_EmptySchemaAcceptsAnything(t *testing.T) {
	if err := ValidateState("tuple(uint256)", map[string]any{"anything": 1}); err != nil {
		t.Errorf("ValidateState() error = %v, want nil", err)
	}
}
