// Package schema checks app state against its ABI state encoding.
//
// An encoding such as
//
//	tuple(address owner, uint8 turn, bytes32[] moves)
//
// parses into a Schema mapping each named component to a Type:
//
//	s, err := schema.ParseEncoding("tuple(address owner, uint8 turn)")
//	if err != nil {
//	    return err
//	}
//	if err := schema.Validate(s, state); err != nil {
//	    // err is an *AggregateError listing every offending field
//	}
//
// Unnamed components cannot be matched against a JSON object and are skipped.
// Values may be Go integers, whole floats, json.Number, *big.Int or decimal
// strings for integer types, and 0x-prefixed hex strings for addresses and
// byte types.
package schema
