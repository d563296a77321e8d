package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEncoding parses a "tuple(type name, ...)" state encoding into a Schema.
func ParseEncoding(encoding string) (Schema, error) {
	enc := strings.TrimSpace(encoding)
	if !strings.HasPrefix(enc, "tuple(") || !strings.HasSuffix(enc, ")") {
		return nil, fmt.Errorf("%w: %q is not a tuple", ErrUnsupportedEncoding, encoding)
	}
	body := strings.TrimSpace(enc[len("tuple(") : len(enc)-1])

	out := Schema{}
	if body == "" {
		return out, nil
	}
	for _, component := range strings.Split(body, ",") {
		fields := strings.Fields(component)
		if len(fields) == 0 || len(fields) > 2 {
			return nil, fmt.Errorf("%w: malformed component %q", ErrUnsupportedEncoding, strings.TrimSpace(component))
		}
		t, err := ParseType(fields[0])
		if err != nil {
			return nil, err
		}
		if len(fields) == 1 {
			continue
		}
		name := fields[1]
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate component %q", ErrUnsupportedEncoding, name)
		}
		out[name] = t
	}
	return out, nil
}

// ParseType parses one ABI type name such as "uint8", "bytes32" or "address[2]".
func ParseType(name string) (Type, error) {
	if strings.HasSuffix(name, "]") {
		open := strings.LastIndex(name, "[")
		if open <= 0 {
			return nil, fmt.Errorf("%w: type %q", ErrUnsupportedEncoding, name)
		}
		elem, err := ParseType(name[:open])
		if err != nil {
			return nil, err
		}
		size := name[open+1 : len(name)-1]
		if size == "" {
			return Array(elem, 0), nil
		}
		n, err := strconv.Atoi(size)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: array length in %q", ErrUnsupportedEncoding, name)
		}
		return Array(elem, n), nil
	}

	switch name {
	case "bool":
		return Bool(), nil
	case "string":
		return String(), nil
	case "address":
		return Address(), nil
	case "bytes":
		return Bytes(0), nil
	case "uint", "int":
		return &IntType{Bits: 256, Signed: name == "int"}, nil
	}

	switch {
	case strings.HasPrefix(name, "uint"):
		return intType(name, name[len("uint"):], false)
	case strings.HasPrefix(name, "int"):
		return intType(name, name[len("int"):], true)
	case strings.HasPrefix(name, "bytes"):
		n, err := strconv.Atoi(name[len("bytes"):])
		if err != nil || n < 1 || n > 32 {
			return nil, fmt.Errorf("%w: type %q", ErrUnsupportedEncoding, name)
		}
		return Bytes(n), nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnsupportedEncoding, name)
}

func intType(name, bits string, signed bool) (Type, error) {
	n, err := strconv.Atoi(bits)
	if err != nil || n < 8 || n > 256 || n%8 != 0 {
		return nil, fmt.Errorf("%w: type %q", ErrUnsupportedEncoding, name)
	}
	return &IntType{Bits: n, Signed: signed}, nil
}
