// Package wire encodes protocol messages for transports that cross a process
// boundary. Messages travel as a JSON envelope; params are decoded into the
// protocol's parameter type with integers kept exact.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

type envelope struct {
	Protocol  domain.Protocol  `json:"protocol"`
	Seq       int              `json:"seq"`
	Params    map[string]any   `json:"params"`
	FromXpub  string           `json:"fromXpub"`
	ToXpub    string           `json:"toXpub"`
	Signature domain.Signature `json:"signature,omitempty"`
}

// Encode serializes msg.
func Encode(msg domain.ProtocolMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Protocol, err)
	}
	return data, nil
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (domain.ProtocolMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return domain.ProtocolMessage{}, fmt.Errorf("failed to decode message: %w", err)
	}

	params, err := DecodeParams(env.Protocol, env.Params)
	if err != nil {
		return domain.ProtocolMessage{}, err
	}
	return domain.ProtocolMessage{
		Protocol:  env.Protocol,
		Seq:       env.Seq,
		Params:    params,
		FromXpub:  env.FromXpub,
		ToXpub:    env.ToXpub,
		Signature: env.Signature,
	}, nil
}

// DecodeParams converts a generic map into the parameter type of protocol.
func DecodeParams(protocol domain.Protocol, raw map[string]any) (domain.Params, error) {
	switch protocol {
	case domain.ProtocolSetup:
		var p domain.SetupParams
		if err := decodeInto(protocol, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case domain.ProtocolInstall:
		var p domain.InstallParams
		if err := decodeInto(protocol, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case domain.ProtocolUninstall:
		var p domain.UninstallParams
		if err := decodeInto(protocol, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProtocol, protocol)
	}
}

func decodeInto(protocol domain.Protocol, raw map[string]any, out any) error {
	if raw == nil {
		return fmt.Errorf("%s message has no params", protocol)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			bigIntHook,
			textHook,
		),
		Result: out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid %s params: %w", protocol, err)
	}
	return nil
}

var (
	bigIntType    = reflect.TypeOf((*big.Int)(nil))
	digestType    = reflect.TypeOf(domain.Digest{})
	signatureType = reflect.TypeOf(domain.Signature{})
)

// bigIntHook decodes numbers and decimal strings into *big.Int without going
// through float64.
func bigIntHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != bigIntType {
		return data, nil
	}
	var text string
	switch v := data.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	default:
		return data, nil
	}
	n, ok := new(big.Int).SetString(text, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	return n, nil
}

// textHook decodes hex strings into digests and signatures.
func textHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	switch to {
	case digestType:
		return domain.ParseDigest(s)
	case signatureType:
		return domain.ParseSignature(s)
	}
	return data, nil
}
