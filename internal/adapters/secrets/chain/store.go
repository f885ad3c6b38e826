package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/azad-hub/internal/adapters/secrets/file"
	passstore "github.com/bnema/azad-hub/internal/adapters/secrets/pass"
	"github.com/bnema/azad-hub/internal/ports"
	"go.uber.org/multierr"
)

// Store tries a primary credential backend and falls back to a second one
// when the primary fails for any reason other than cancellation.
type Store struct {
	primary  ports.CredentialStore
	fallback ports.CredentialStore
}

var _ ports.CredentialStore = (*Store)(nil)

func NewStore(primary ports.CredentialStore, fallback ports.CredentialStore) (*Store, error) {
	if primary == nil {
		return nil, errors.New("primary credential store is nil")
	}
	if fallback == nil {
		return nil, errors.New("fallback credential store is nil")
	}

	return &Store{primary: primary, fallback: fallback}, nil
}

func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil || isCancellation(err) {
		return err
	}

	if fallbackErr := s.fallback.Put(ctx, key, value); fallbackErr != nil {
		return combine("put", err, fallbackErr)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil || isCancellation(err) {
		return value, err
	}

	value, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr != nil {
		return "", combine("get", err, fallbackErr)
	}
	return value, nil
}

// Delete removes key from both backends so a stale copy cannot resurface
// through the fallback.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if isCancellation(err) {
		return err
	}

	fallbackErr := s.fallback.Delete(ctx, key)
	switch {
	case fallbackErr == nil:
		return nil
	case err != nil:
		return combine("delete", err, fallbackErr)
	default:
		return fmt.Errorf("fallback backend delete: %w", fallbackErr)
	}
}

func combine(op string, primaryErr error, fallbackErr error) error {
	return multierr.Combine(
		fmt.Errorf("primary backend %s: %w", op, primaryErr),
		fmt.Errorf("fallback backend %s: %w", op, fallbackErr),
	)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
