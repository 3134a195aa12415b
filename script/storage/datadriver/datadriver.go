// Package datadriver is the "data" storage backend of spec.md §6: a
// process-local, in-memory Storage with no options, used by tests and by
// hosts that want Sieve scripts without a persistence layer.
package datadriver

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dovesieve/sieve/script"
)

const storageVersion = 1

// Storage implements script.Storage entirely in memory; a process restart
// loses everything it holds.
type Storage struct {
	mu     sync.RWMutex
	name   string
	entry  map[string]*entry
	active string
}

type entry struct {
	source   []byte
	compiled []byte
	meta     *script.Metadata
}

// New creates an empty data storage named name (used only for Metadata's
// StorageName field and diagnostics; data storages are not addressable
// across processes).
func New(name string) *Storage {
	return &Storage{name: name, entry: make(map[string]*entry)}
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) GetScript(_ context.Context, name string) (script.Script, error) {
	if err := script.ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entry[name]; !ok {
		return nil, fmt.Errorf("datadriver: no script named %q", name)
	}
	return &handle{s: s, name: name}, nil
}

func (s *Storage) Save(_ context.Context, name string, source []byte) (script.Script, error) {
	if err := script.ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entry[name]
	if !ok {
		e = &entry{}
		s.entry[name] = e
	}
	e.source = append([]byte(nil), source...)
	e.compiled = nil
	e.meta = nil
	return &handle{s: s, name: name}, nil
}

func (s *Storage) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entry))
	for name := range s.entry {
		out = append(out, name)
	}
	return out, nil
}

func (s *Storage) ActiveScriptName(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return "", false, nil
	}
	return s.active, true, nil
}

func (s *Storage) ActiveScriptOpen(ctx context.Context) (script.Script, error) {
	s.mu.RLock()
	name := s.active
	s.mu.RUnlock()
	if name == "" {
		return nil, fmt.Errorf("datadriver: no active script")
	}
	return s.GetScript(ctx, name)
}

func (s *Storage) Deactivate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
	return nil
}

// QuotaHaveSpace always reports true; the in-memory driver enforces no
// quota.
func (s *Storage) QuotaHaveSpace(_ context.Context, _ int64) (bool, error) { return true, nil }

func (s *Storage) Close() error { return nil }

// handle implements script.Script over one entry of Storage.
type handle struct {
	s    *Storage
	name string
}

func (h *handle) Name() string { return h.name }

func (h *handle) get() (*entry, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	e, ok := h.s.entry[h.name]
	if !ok {
		return nil, fmt.Errorf("datadriver: script %q no longer exists", h.name)
	}
	return e, nil
}

func (h *handle) Open(ctx context.Context) (io.ReadCloser, error) { return h.GetStream(ctx) }

func (h *handle) GetStream(_ context.Context) (io.ReadCloser, error) {
	e, err := h.get()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(e.source))), nil
}

func (h *handle) BinaryReadMetadata(_ context.Context) (*script.Metadata, script.LoadVerdict, error) {
	e, err := h.get()
	if err != nil {
		return nil, script.Corrupt, err
	}
	if e.meta == nil {
		return nil, script.Stale, nil
	}
	return e.meta, script.UpToDate, nil
}

func (h *handle) BinaryWriteMetadata(_ context.Context, m *script.Metadata) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	e, ok := h.s.entry[h.name]
	if !ok {
		return fmt.Errorf("datadriver: script %q no longer exists", h.name)
	}
	e.meta = m
	return nil
}

func (h *handle) BinaryLoad(_ context.Context) ([]byte, script.LoadVerdict, error) {
	e, err := h.get()
	if err != nil {
		return nil, script.Corrupt, err
	}
	if e.compiled == nil || e.meta == nil {
		return nil, script.Stale, nil
	}
	return e.compiled, script.UpToDate, nil
}

func (h *handle) BinarySave(_ context.Context, compiled []byte, m *script.Metadata) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	e, ok := h.s.entry[h.name]
	if !ok {
		return fmt.Errorf("datadriver: script %q no longer exists", h.name)
	}
	m.DriverName = "data"
	m.StorageVer = storageVersion
	m.StorageName = h.s.name
	m.ScriptName = h.name
	e.compiled = append([]byte(nil), compiled...)
	e.meta = m
	return nil
}

func (h *handle) Rename(_ context.Context, newName string) error {
	if err := script.ValidateName(newName); err != nil {
		return err
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	e, ok := h.s.entry[h.name]
	if !ok {
		return fmt.Errorf("datadriver: script %q no longer exists", h.name)
	}
	if _, exists := h.s.entry[newName]; exists {
		return fmt.Errorf("datadriver: script %q already exists", newName)
	}
	delete(h.s.entry, h.name)
	h.s.entry[newName] = e
	if h.s.active == h.name {
		h.s.active = newName
	}
	h.name = newName
	return nil
}

func (h *handle) Delete(_ context.Context) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if _, ok := h.s.entry[h.name]; !ok {
		return fmt.Errorf("datadriver: script %q no longer exists", h.name)
	}
	delete(h.s.entry, h.name)
	if h.s.active == h.name {
		h.s.active = ""
	}
	return nil
}

func (h *handle) Activate(_ context.Context) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if _, ok := h.s.entry[h.name]; !ok {
		return fmt.Errorf("datadriver: script %q no longer exists", h.name)
	}
	h.s.active = h.name
	return nil
}

func (h *handle) IsActive(_ context.Context) (bool, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.active == h.name, nil
}

func (h *handle) Cmp(other script.Script) bool {
	o, ok := other.(*handle)
	return ok && o.s == h.s && o.name == h.name
}
