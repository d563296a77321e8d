package schema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
)

// Type validates one ABI-typed value.
type Type interface {
	// Name returns the ABI type name, e.g. "uint256" or "address[]".
	Name() string
	Validate(value any) error
}

// IntType is a signed or unsigned integer of Bits width.
type IntType struct {
	Bits   int
	Signed bool
}

func (t *IntType) Name() string {
	if t.Signed {
		return fmt.Sprintf("int%d", t.Bits)
	}
	return fmt.Sprintf("uint%d", t.Bits)
}

func (t *IntType) Validate(value any) error {
	n, err := toBigInt(value)
	if err != nil {
		return err
	}
	var lo, hi *big.Int
	if t.Signed {
		hi = new(big.Int).Lsh(big.NewInt(1), uint(t.Bits-1))
		lo = new(big.Int).Neg(hi)
		hi.Sub(hi, big.NewInt(1))
	} else {
		lo = new(big.Int)
		hi = new(big.Int).Lsh(big.NewInt(1), uint(t.Bits))
		hi.Sub(hi, big.NewInt(1))
	}
	if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
		return fmt.Errorf("%s out of range for %s", n, t.Name())
	}
	return nil
}

func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("expected integer, got nil")
		}
		return v, nil
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("expected decimal integer, got %q", v)
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("expected integer, got float %v", v)
		}
		n, _ := big.NewFloat(v).Int(nil)
		return n, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("expected integer, got %T", value)
}

// BoolType validates booleans.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// StringType validates strings.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// BytesType validates 0x-prefixed hex. Size 0 means dynamic bytes.
type BytesType struct {
	Size int
	name string
}

func (t *BytesType) Name() string { return t.name }

func (t *BytesType) Validate(value any) error {
	s, ok := stringOf(value)
	if !ok {
		return fmt.Errorf("expected hex string, got %T", value)
	}
	if !strings.HasPrefix(s, "0x") {
		return fmt.Errorf("%s must be 0x-prefixed", t.name)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	if t.Size > 0 && len(raw) != t.Size {
		return fmt.Errorf("expected %d bytes, got %d", t.Size, len(raw))
	}
	return nil
}

func stringOf(value any) (string, bool) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

// ArrayType validates slices of Elem. Length 0 means dynamic.
type ArrayType struct {
	Elem   Type
	Length int
}

func (t *ArrayType) Name() string {
	if t.Length > 0 {
		return fmt.Sprintf("%s[%d]", t.Elem.Name(), t.Length)
	}
	return t.Elem.Name() + "[]"
}

func (t *ArrayType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected array, got %T", value)
	}
	if t.Length > 0 && rv.Len() != t.Length {
		return fmt.Errorf("expected %d elements, got %d", t.Length, rv.Len())
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.Elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// Uint creates an unsigned integer type.
func Uint(bits int) Type { return &IntType{Bits: bits} }

// Int creates a signed integer type.
func Int(bits int) Type { return &IntType{Bits: bits, Signed: true} }

// Bool creates the bool type.
func Bool() Type { return &BoolType{} }

// String creates the string type.
func String() Type { return &StringType{} }

// Address creates the address type, 20 bytes of hex.
func Address() Type { return &BytesType{Size: 20, name: "address"} }

// Bytes creates bytesN, or dynamic bytes when size is 0.
func Bytes(size int) Type {
	if size == 0 {
		return &BytesType{name: "bytes"}
	}
	return &BytesType{Size: size, name: fmt.Sprintf("bytes%d", size)}
}

// Array creates elem[length], or elem[] when length is 0.
func Array(elem Type, length int) Type { return &ArrayType{Elem: elem, Length: length} }
