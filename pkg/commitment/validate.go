package commitment

import (
	"fmt"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/xkeys"
)

// ValidateSignature checks that sig over c was produced by expected.
func ValidateSignature(expected domain.Address, c domain.Commitment, sig domain.Signature) error {
	return validate(expected, c, sig, false)
}

// ValidateIntermediarySignature checks an intermediary's signature over c.
func ValidateIntermediarySignature(expected domain.Address, c domain.Commitment, sig domain.Signature) error {
	return validate(expected, c, sig, true)
}

func validate(expected domain.Address, c domain.Commitment, sig domain.Signature, asIntermediary bool) error {
	if c == nil {
		return fmt.Errorf("%w: no commitment to validate against", domain.ErrInvalidSignature)
	}
	if len(sig) == 0 {
		return fmt.Errorf("%w: missing signature from %s", domain.ErrInvalidSignature, expected)
	}
	signer, err := xkeys.RecoverAddress(sig, c.HashToSign(asIntermediary))
	if err != nil {
		return err
	}
	if !signer.Equal(expected) {
		return fmt.Errorf("%w: signed by %s, expected %s", domain.ErrInvalidSignature, signer, expected)
	}
	return nil
}
