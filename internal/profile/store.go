package profile

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// KV is the durable key/value backend of a Store. Put must be durable when it
// returns: set keys are written and deleted keys removed atomically.
type KV interface {
	Load(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, set map[string]string, del []string) error
}

// Store holds the durable cross-step profile and notifies subscribers on change.
type Store struct {
	kv KV

	mu      sync.Mutex
	current Profile

	subMu  sync.Mutex
	subs   map[int]func(Profile)
	nextID int
}

// NewStore loads the persisted profile from kv.
func NewStore(ctx context.Context, kv KV) (*Store, error) {
	values, err := kv.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &Store{
		kv:      kv,
		current: decode(values),
		subs:    make(map[int]func(Profile)),
	}, nil
}

// Get returns a copy of the current profile.
func (s *Store) Get() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Set writes the non-nil fields of u. The write is durable before Set returns;
// fields not named in u keep their previous values.
func (s *Store) Set(ctx context.Context, u Partial) error {
	if u.IsEmpty() {
		return nil
	}

	values, err := encode(u)
	if err != nil {
		return fmt.Errorf("failed to encode profile update: %w", err)
	}

	s.mu.Lock()
	if err := s.kv.Put(ctx, values, nil); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist profile: %w", err)
	}
	s.current = s.current.apply(u)
	snapshot := s.current.clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// ClearSession forgets the session token. The onboarding fields are kept.
func (s *Store) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	if err := s.kv.Put(ctx, nil, []string{keyToken}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.current.Token = ""
	snapshot := s.current.clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Reload re-reads the backend, picking up writes made by another process.
// Subscribers are notified when the profile changed.
func (s *Store) Reload(ctx context.Context) error {
	values, err := s.kv.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload profile: %w", err)
	}
	loaded := decode(values)

	s.mu.Lock()
	changed := !reflect.DeepEqual(s.current, loaded)
	s.current = loaded
	snapshot := loaded.clone()
	s.mu.Unlock()

	if changed {
		s.notify(snapshot)
	}
	return nil
}

// Subscribe registers fn to be called with the new profile after every change.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Profile)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(p Profile) {
	s.subMu.Lock()
	fns := make([]func(Profile), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(p.clone())
	}
}
