// Package process signs commitment digests with an external program, so that
// private keys can stay in a separate process such as a hardware wallet bridge.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/xkeys"
)

const (
	// EnvDigest carries the 0x-prefixed digest to sign.
	EnvDigest = "CHANFLOW_DIGEST"
	// EnvKeyIndex carries the decimal child index of the signing key.
	EnvKeyIndex = "CHANFLOW_KEY_INDEX"
)

// ErrSignerFailed is returned when the signer program exits with an error or
// prints something that is not a valid signature.
var ErrSignerFailed = errors.New("external signer failed")

// Signer runs a fixed command for every signature. Inputs are passed as
// environment variables, never as arguments, so a digest cannot inject flags.
// The command must print the 65-byte compact signature as hex on stdout.
type Signer struct {
	command string
	args    []string
	dir     string
	xpub    string
	logger  *slog.Logger
}

// Option configures the Signer.
type Option func(*Signer)

// WithBaseDir sets the working directory for the signer program.
func WithBaseDir(dir string) Option {
	return func(s *Signer) {
		s.dir = dir
	}
}

// WithExpectedXpub makes the signer check that every signature recovers to the
// index-k child of xpub.
func WithExpectedXpub(xpub string) Option {
	return func(s *Signer) {
		s.xpub = xpub
	}
}

// WithLogger sets the signer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSigner creates a signer that runs command with args.
func NewSigner(command string, args []string, opts ...Option) (*Signer, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("signer command is required")
	}
	s := &Signer{
		command: command,
		args:    append([]string(nil), args...),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.xpub != "" {
		if _, err := xkeys.KthAddress(s.xpub, 0); err != nil {
			return nil, fmt.Errorf("invalid expected xpub: %w", err)
		}
	}
	return s, nil
}

// SignDigest runs the signer program for digest and the index-keyIndex key.
func (s *Signer) SignDigest(ctx context.Context, digest domain.Digest, keyIndex uint32) (domain.Signature, error) {
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Dir = s.dir
	cmd.Env = append(cmd.Environ(),
		EnvDigest+"="+digest.Hex(),
		EnvKeyIndex+"="+strconv.FormatUint(uint64(keyIndex), 10),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrSignerFailed, err, strings.TrimSpace(stderr.String()))
	}

	sig, err := domain.ParseSignature(strings.TrimSpace(stdout.String()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignerFailed, err)
	}
	if len(sig) != xkeys.SignatureLen {
		return nil, fmt.Errorf("%w: want %d signature bytes, got %d", ErrSignerFailed, xkeys.SignatureLen, len(sig))
	}

	if s.xpub != "" {
		want, err := xkeys.KthAddress(s.xpub, keyIndex)
		if err != nil {
			return nil, err
		}
		got, err := xkeys.RecoverAddress(sig, digest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignerFailed, err)
		}
		if !got.Equal(want) {
			return nil, fmt.Errorf("%w: signature recovers to %s, expected %s", ErrSignerFailed, got, want)
		}
	}

	s.logger.Debug("external signature produced", "digest", digest.Hex(), "key_index", keyIndex)
	return sig, nil
}
