// internal/sealing/aead.go
//
// Confidential provider backed by XChaCha20-Poly1305.
// Responsibilities:
//   - Seal tile values into random-nonce ciphertext handles.
//   - Unseal handles produced by the same secret.
//   - Issue HS256 permits to connected identities for a named environment.
//
// Keys for sealing and for permits are derived separately from one secret
// with HKDF-SHA256, so leaking a permit key never exposes tile values.

package sealing

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	aeadVersion      byte = 1
	sealInfo              = "sealed2048/seal/v1"
	permitInfo            = "sealed2048/permit/v1"
	defaultMaxPermit      = 24 * time.Hour
)

// AEADConfig configures an AEADProvider.
type AEADConfig struct {
	Secret       []byte        // at least 16 bytes
	Environments []string      // accepted environments; empty accepts any
	MaxPermit    time.Duration // upper bound (and default) for permit lifetime
	Latency      time.Duration // simulated round-trip per call
	Now          func() time.Time
}

// AEADProvider seals values with an authenticated cipher.
type AEADProvider struct {
	aead      cipher.AEAD
	permitKey []byte
	envs      map[string]struct{}
	maxPermit time.Duration
	latency   time.Duration
	now       func() time.Time
}

// permitClaims is the JWT body of a permit.
type permitClaims struct {
	Environment string `json:"env"`
	jwt.RegisteredClaims
}

// NewAEADProvider derives keys from cfg.Secret and returns a ready provider.
func NewAEADProvider(cfg AEADConfig) (*AEADProvider, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("sealing: secret must be at least 16 bytes")
	}
	sealKey, err := deriveKey(cfg.Secret, sealInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	permitKey, err := deriveKey(cfg.Secret, permitInfo, 32)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("sealing: create cipher: %w", err)
	}
	p := &AEADProvider{
		aead:      aead,
		permitKey: permitKey,
		maxPermit: cfg.MaxPermit,
		latency:   cfg.Latency,
		now:       cfg.Now,
	}
	if p.maxPermit <= 0 {
		p.maxPermit = defaultMaxPermit
	}
	if p.now == nil {
		p.now = time.Now
	}
	if len(cfg.Environments) > 0 {
		p.envs = make(map[string]struct{}, len(cfg.Environments))
		for _, e := range cfg.Environments {
			p.envs[e] = struct{}{}
		}
	}
	return p, nil
}

func deriveKey(secret []byte, info string, n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("sealing: derive %s: %w", info, err)
	}
	return key, nil
}

// Seal encrypts v under a fresh random nonce.
// Payload layout: nonce || ciphertext+tag, with the version byte as associated data.
func (p *AEADProvider) Seal(ctx context.Context, v uint32) (Handle, error) {
	if err := pause(ctx, p.latency); err != nil {
		return Handle{}, err
	}
	nonce := make([]byte, p.aead.NonceSize(), p.aead.NonceSize()+4+p.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Handle{}, fmt.Errorf("%w: nonce: %v", ErrSealFailure, err)
	}
	var plain [4]byte
	binary.BigEndian.PutUint32(plain[:], v)
	payload := p.aead.Seal(nonce, nonce, plain[:], []byte{aeadVersion})
	return Handle{scheme: SchemeAEAD, payload: payload}, nil
}

// Unseal decrypts a handle produced by Seal with the same secret.
func (p *AEADProvider) Unseal(ctx context.Context, h Handle) (uint32, error) {
	if err := pause(ctx, p.latency); err != nil {
		return 0, err
	}
	if h.scheme != SchemeAEAD {
		return 0, fmt.Errorf("%w: %s handle given to aead provider", ErrUnsealFailure, h.scheme)
	}
	ns := p.aead.NonceSize()
	if len(h.payload) < ns+p.aead.Overhead() {
		return 0, fmt.Errorf("%w: short payload", ErrUnsealFailure)
	}
	plain, err := p.aead.Open(nil, h.payload[:ns], h.payload[ns:], []byte{aeadVersion})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsealFailure, err)
	}
	if len(plain) != 4 {
		return 0, fmt.Errorf("%w: unexpected plaintext length %d", ErrUnsealFailure, len(plain))
	}
	return binary.BigEndian.Uint32(plain), nil
}

// Authorize issues a signed permit for identity.
// Rejections are wrapped in ErrAuthorizationFailed.
func (p *AEADProvider) Authorize(ctx context.Context, identity string, opts AuthOptions) (Permit, error) {
	if err := pause(ctx, p.latency); err != nil {
		return Permit{}, err
	}
	if !IsAddress(identity) {
		return Permit{}, fmt.Errorf("%w: identity %q is not an address", ErrAuthorizationFailed, identity)
	}
	if p.envs != nil {
		if _, ok := p.envs[opts.Environment]; !ok {
			return Permit{}, fmt.Errorf("%w: unknown environment %q", ErrAuthorizationFailed, opts.Environment)
		}
	}
	ttl := opts.Expiry
	if ttl <= 0 {
		ttl = p.maxPermit
	}
	if ttl > p.maxPermit {
		return Permit{}, fmt.Errorf("%w: expiry %s exceeds %s", ErrAuthorizationFailed, ttl, p.maxPermit)
	}

	issued := p.now().UTC().Truncate(time.Second)
	exp := issued.Add(ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, permitClaims{
		Environment: opts.Environment,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	ss, err := tok.SignedString(p.permitKey)
	if err != nil {
		return Permit{}, fmt.Errorf("%w: sign permit: %v", ErrAuthorizationFailed, err)
	}
	return Permit{
		Identity:    identity,
		Environment: opts.Environment,
		Token:       ss,
		IssuedAt:    issued,
		ExpiresAt:   exp,
	}, nil
}

// VerifyPermit parses a permit token issued by this provider.
func (p *AEADProvider) VerifyPermit(token string) (Permit, error) {
	var claims permitClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return p.permitKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return Permit{}, fmt.Errorf("%w: %v", ErrAuthorizationRequired, err)
	}
	out := Permit{Identity: claims.Subject, Environment: claims.Environment, Token: token}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}
