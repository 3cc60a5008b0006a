package models

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader initialises the backend for one modality.
type Loader[T any] struct {
	// Load builds a ready-to-use backend. A nil Load means the modality is not
	// configured and every request for it fails with ErrDisabled.
	Load func(ctx context.Context) (T, error)

	// Concurrent declares that the backend tolerates concurrent calls. When
	// false the runtime serialises calls into it.
	Concurrent bool
}

// Loaders holds one Loader per modality.
type Loaders struct {
	Text      Loader[TextBackend]
	Label     Loader[LabelBackend]
	Embedding Loader[EmbeddingBackend]
}

// State is the initialisation state of a modality.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status describes one modality for diagnostics.
type Status struct {
	Modality   Modality  `json:"modality"`
	Configured bool      `json:"configured"`
	State      State     `json:"state"`
	LastError  string    `json:"last_error,omitempty"`
	Loads      int       `json:"loads"`
	ReadyAt    time.Time `json:"ready_at,omitempty"`
}

// Runtime caches one backend per modality. It is safe for concurrent use.
type Runtime struct {
	text      *slot[TextBackend]
	label     *slot[LabelBackend]
	embedding *slot[EmbeddingBackend]
}

// New creates a Runtime. No backend is initialised until first requested.
func New(l Loaders) *Runtime {
	r := &Runtime{
		text:      newSlot(ModalityText, l.Text.Load),
		label:     newSlot(ModalityLabel, l.Label.Load),
		embedding: newSlot(ModalityEmbedding, l.Embedding.Load),
	}
	if !l.Text.Concurrent {
		r.text.wrap = func(b TextBackend) TextBackend { return &serialTextBackend{next: b} }
	}
	if !l.Label.Concurrent {
		r.label.wrap = func(b LabelBackend) LabelBackend { return &serialLabelBackend{next: b} }
	}
	if !l.Embedding.Concurrent {
		r.embedding.wrap = func(b EmbeddingBackend) EmbeddingBackend { return &serialEmbeddingBackend{next: b} }
	}
	return r
}

// EnsureReady initialises the backend for m if it is not ready yet.
func (r *Runtime) EnsureReady(ctx context.Context, m Modality) error {
	var err error
	switch m {
	case ModalityText:
		_, err = r.text.get(ctx)
	case ModalityLabel:
		_, err = r.label.get(ctx)
	case ModalityEmbedding:
		_, err = r.embedding.get(ctx)
	default:
		err = fmt.Errorf("unknown modality: %s", m)
	}
	return err
}

// Configured reports whether a loader was supplied for m.
func (r *Runtime) Configured(m Modality) bool {
	switch m {
	case ModalityText:
		return r.text.load != nil
	case ModalityLabel:
		return r.label.load != nil
	case ModalityEmbedding:
		return r.embedding.load != nil
	}
	return false
}

// Text returns the ready text backend, initialising it if needed.
func (r *Runtime) Text(ctx context.Context) (TextBackend, error) {
	return r.text.get(ctx)
}

// Labels returns the ready label backend, initialising it if needed.
func (r *Runtime) Labels(ctx context.Context) (LabelBackend, error) {
	return r.label.get(ctx)
}

// Embeddings returns the ready embedding backend, initialising it if needed.
func (r *Runtime) Embeddings(ctx context.Context) (EmbeddingBackend, error) {
	return r.embedding.get(ctx)
}

// Invalidate drops the cached backend for m, closing it when it implements
// io.Closer. The next request initialises a fresh backend.
func (r *Runtime) Invalidate(m Modality) error {
	switch m {
	case ModalityText:
		return r.text.reset()
	case ModalityLabel:
		return r.label.reset()
	case ModalityEmbedding:
		return r.embedding.reset()
	}
	return fmt.Errorf("unknown modality: %s", m)
}

// InvalidateIf is Invalidate limited to the case where backend is still the
// cached instance for m. A caller holding a backend that has already been
// replaced leaves the newer one alone. It reports whether a reset happened.
func (r *Runtime) InvalidateIf(m Modality, backend any) (bool, error) {
	switch m {
	case ModalityText:
		return r.text.resetIf(backend)
	case ModalityLabel:
		return r.label.resetIf(backend)
	case ModalityEmbedding:
		return r.embedding.resetIf(backend)
	}
	return false, fmt.Errorf("unknown modality: %s", m)
}

// Status reports the state of every modality.
func (r *Runtime) Status() []Status {
	return []Status{r.text.status(), r.label.status(), r.embedding.status()}
}

// Close releases every ready backend.
func (r *Runtime) Close() error {
	return errors.Join(r.text.reset(), r.label.reset(), r.embedding.reset())
}

// slot is the lazily initialised cache entry for one modality.
type slot[T any] struct {
	modality Modality
	load     func(ctx context.Context) (T, error)
	wrap     func(T) T
	group    singleflight.Group

	mu      sync.RWMutex
	value   T
	ready   bool
	loading bool
	lastErr error
	loads   int
	readyAt time.Time
}

func newSlot[T any](m Modality, load func(ctx context.Context) (T, error)) *slot[T] {
	return &slot[T]{modality: m, load: load}
}

func (s *slot[T]) cached() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.ready
}

func (s *slot[T]) get(ctx context.Context) (T, error) {
	var zero T
	if s.load == nil {
		return zero, fmt.Errorf("%s backend: %w", s.modality, ErrDisabled)
	}
	if v, ok := s.cached(); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// The shared load must outlive any single waiter.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(s.modality), func() (any, error) {
		if v, ok := s.cached(); ok {
			return v, nil
		}
		return s.initialise(loadCtx)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (s *slot[T]) initialise(ctx context.Context) (T, error) {
	var zero T

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	v, err := s.load(ctx)
	if err == nil && any(v) == nil {
		err = fmt.Errorf("%s loader returned no backend", s.modality)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		return zero, fmt.Errorf("failed to initialise %s backend: %w", s.modality, err)
	}
	if s.wrap != nil {
		v = s.wrap(v)
	}
	s.value = v
	s.ready = true
	s.lastErr = nil
	s.loads++
	s.readyAt = time.Now()
	return v, nil
}

func (s *slot[T]) reset() error {
	s.mu.Lock()
	v, ok := s.value, s.ready
	var zero T
	s.value = zero
	s.ready = false
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := closeIfCloser(v); err != nil {
		return fmt.Errorf("failed to close %s backend: %w", s.modality, err)
	}
	return nil
}

func (s *slot[T]) resetIf(want any) (bool, error) {
	s.mu.Lock()
	v := s.value
	if !s.ready || !sameBackend(v, want) {
		s.mu.Unlock()
		return false, nil
	}
	var zero T
	s.value = zero
	s.ready = false
	s.mu.Unlock()

	if err := closeIfCloser(v); err != nil {
		return true, fmt.Errorf("failed to close %s backend: %w", s.modality, err)
	}
	return true, nil
}

// sameBackend reports whether a and b are the same backend instance.
// Values of non-comparable types never match.
func sameBackend(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func (s *slot[T]) status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Modality:   s.modality,
		Configured: s.load != nil,
		State:      StateIdle,
		Loads:      s.loads,
	}
	switch {
	case s.ready:
		st.State = StateReady
		st.ReadyAt = s.readyAt
	case s.loading:
		st.State = StateLoading
	case s.lastErr != nil:
		st.State = StateFailed
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
