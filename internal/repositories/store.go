package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// StateKey is the KV key holding the orchestrator document.
const StateKey = "group_migrations"

// ErrSkipSave ends an [Store.Update] without writing. Update returns nil.
var ErrSkipSave = errors.New("skip save")

// Store serializes access to the state document.
type Store struct {
	kv  KV
	key string
	mu  sync.Mutex
}

// NewStore creates a new [Store] over kv using [StateKey].
func NewStore(kv KV) *Store {
	return &Store{kv: kv, key: StateKey}
}

// View loads the document and passes it to fn. Changes made by fn are discarded.
func (s *Store) View(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(st)
}

// Update loads the document, applies fn and saves the result in one [KV.Update], so writers in
// other processes sharing the database are serialized too.
//
// If fn fails nothing is written and its error is returned unchanged.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.kv.Update(ctx, s.key, func(data []byte, ok bool) ([]byte, error) {
		st, err := decode(data, ok)
		if err != nil {
			return nil, err
		}
		if err := fn(st); err != nil {
			return nil, err
		}
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("refusing to save state: %w", err)
		}

		next, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to encode state: %w", err)
		}
		return next, nil
	})
	if errors.Is(err, ErrSkipSave) {
		return nil
	}
	return err
}

func (s *Store) load(ctx context.Context) (*State, error) {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return decode(data, ok)
}

func decode(data []byte, ok bool) (*State, error) {
	if !ok || len(data) == 0 {
		return NewState(), nil
	}

	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	st.ensure()
	return st, nil
}
