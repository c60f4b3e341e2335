package settings

import (
	"context"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-crm-ordersync/internal/validation"
)

const optionKey = "settings"

// OptionStore is the key/value persistence the settings live in.
type OptionStore interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any) error
}

// Store loads and saves validated Settings.
type Store struct {
	opts     OptionStore
	validate *validatorv10.Validate
}

// NewStore returns a settings Store on top of opts.
func NewStore(opts OptionStore) *Store {
	return &Store{opts: opts, validate: validation.New()}
}

// Validate checks s against its field rules.
func (s *Store) Validate(st Settings) error {
	if err := s.validate.Struct(st); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Load returns the stored settings, or Defaults when none were saved.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	var st Settings
	found, err := s.opts.Get(ctx, optionKey, &st)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		return Defaults(), nil
	}
	st = st.withDefaults()
	if err := s.Validate(st); err != nil {
		return Settings{}, err
	}
	return st, nil
}

// Save validates and persists st.
func (s *Store) Save(ctx context.Context, st Settings) error {
	if err := s.Validate(st); err != nil {
		return err
	}
	if err := s.opts.Put(ctx, optionKey, st); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
