// Package otp issues and verifies one-time codes that a patient reads out
// to authorise a redemption. Codes are stored bcrypt-hashed and can be
// consumed exactly once.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	CodeLength  = 6
	MaxAttempts = 5

	keyPrefixCode     = "otp:code:"
	keyPrefixAttempts = "otp:attempts:"
)

var ErrTooManyAttempts = errors.New("too many otp attempts")

// Store is the key/value backend for codes.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ok=false for a missing or expired key.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Del returns how many keys it removed.
	Del(ctx context.Context, keys ...string) (int64, error)
	// Incr increments a counter, setting ttl when it is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Service struct {
	store Store
	ttl   time.Duration
	cost  int
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl, cost: bcrypt.DefaultCost}
}

// Issue creates a fresh code for target, replacing any outstanding one.
func (s *Service) Issue(ctx context.Context, target uuid.UUID) (string, error) {
	code, err := generateNumericCode(CodeLength)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}

	if _, err := s.store.Del(ctx, keyPrefixAttempts+target.String()); err != nil {
		return "", fmt.Errorf("reset otp attempts: %w", err)
	}
	if err := s.store.Set(ctx, keyPrefixCode+target.String(), string(hash), s.ttl); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify consumes target's code if it matches. Concurrent callers with
// the right code race on the delete and only one of them wins.
func (s *Service) Verify(ctx context.Context, target uuid.UUID, code string) (bool, error) {
	codeKey := keyPrefixCode + target.String()
	attemptsKey := keyPrefixAttempts + target.String()

	hash, ok, err := s.store.Get(ctx, codeKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		attempts, err := s.store.Incr(ctx, attemptsKey, s.ttl)
		if err != nil {
			return false, err
		}
		if attempts >= MaxAttempts {
			if _, err := s.store.Del(ctx, codeKey, attemptsKey); err != nil {
				return false, err
			}
			return false, ErrTooManyAttempts
		}
		return false, nil
	}

	removed, err := s.store.Del(ctx, codeKey, attemptsKey)
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func generateNumericCode(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
