package schema

import "sort"

// Schema maps tuple component names to their types.
type Schema map[string]Type

// Validate checks that data holds every component with a valid value. Extra
// keys are rejected since they would not survive ABI encoding.
func Validate(schema Schema, data map[string]any) error {
	var errs []error

	for _, key := range sortedKeys(schema) {
		value, ok := data[key]
		if !ok {
			errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			continue
		}
		if err := schema[key].Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	if len(schema) > 0 {
		for _, key := range sortedKeys(data) {
			if _, ok := schema[key]; !ok {
				errs = append(errs, &ValidationError{Key: key, Reason: "not in state encoding", Value: data[key]})
			}
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidateState parses encoding and validates state against it.
func ValidateState(encoding string, state map[string]any) error {
	s, err := ParseEncoding(encoding)
	if err != nil {
		return err
	}
	return Validate(s, state)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
