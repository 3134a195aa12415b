// Package filedriver is the "file" storage backend of spec.md §6/§4.11:
// scripts are plain files under script_path, compiled binaries (plus a
// CBOR metadata sidecar) under script_bin_path, and the active script is
// a symlink at script_active_path, activated with a temp-file-plus-rename
// so a reader never observes a half-written link (spec.md §5 "Shared
// resources ... file storage uses temp-file-plus-rename to avoid readers
// observing partial writes").
package filedriver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fxamacker/cbor/v2"

	"github.com/dovesieve/sieve/script"
)

const storageVersion = 1

var optionsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"script_path":        map[string]any{"type": "string", "minLength": 1},
		"script_active_path": map[string]any{"type": "string", "minLength": 1},
		"script_bin_path":    map[string]any{"type": "string", "minLength": 1},
	},
	"required":             []any{"script_path", "script_active_path", "script_bin_path"},
	"additionalProperties": false,
}

// driverMeta is the file-specific block of script.Metadata.Driver,
// CBOR-encoded (spec.md §4.11 "driver-specific fields (file path, dict
// data-id, LDAP DN and modify-timestamp)").
type driverMeta struct {
	Path    string
	ModTime int64
}

// Storage implements script.Storage over a directory tree.
type Storage struct {
	name       string
	scriptDir  string
	activePath string
	binDir     string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New validates opts against the driver's option schema and opens a file
// storage over the three configured directories/paths, creating
// script_path and script_bin_path if absent.
func New(name string, opts script.Options) (*Storage, error) {
	if err := script.ValidateOptions(optionsSchema, opts); err != nil {
		return nil, err
	}
	scriptDir := opts["script_path"]
	binDir := opts["script_bin_path"]
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		return nil, fmt.Errorf("filedriver: creating script_path: %w", err)
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return nil, fmt.Errorf("filedriver: creating script_bin_path: %w", err)
	}
	return &Storage{
		name:       name,
		scriptDir:  scriptDir,
		activePath: opts["script_active_path"],
		binDir:     binDir,
	}, nil
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) sourcePath(name string) string { return filepath.Join(s.scriptDir, name+".sieve") }
func (s *Storage) binPath(name string) string  { return filepath.Join(s.binDir, name+".sievec") }
func (s *Storage) metaPath(name string) string { return filepath.Join(s.binDir, name+".meta.cbor") }

func (s *Storage) GetScript(_ context.Context, name string) (script.Script, error) {
	if err := script.ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.sourcePath(name)); err != nil {
		return nil, fmt.Errorf("filedriver: script %q: %w", name, err)
	}
	return &handle{s: s, name: name}, nil
}

func (s *Storage) Save(_ context.Context, name string, source []byte) (script.Script, error) {
	if err := script.ValidateName(name); err != nil {
		return nil, err
	}
	if err := atomicWrite(s.sourcePath(name), source); err != nil {
		return nil, err
	}
	// Invalidate any stale compiled binary for this name.
	_ = os.Remove(s.binPath(name))
	_ = os.Remove(s.metaPath(name))
	return &handle{s: s, name: name}, nil
}

func (s *Storage) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.scriptDir)
	if err != nil {
		return nil, fmt.Errorf("filedriver: listing script_path: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".sieve"
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			out = append(out, name[:len(name)-len(ext)])
		}
	}
	return out, nil
}

func (s *Storage) ActiveScriptName(_ context.Context) (string, bool, error) {
	target, err := os.Readlink(s.activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("filedriver: reading active-script link: %w", err)
	}
	base := filepath.Base(target)
	const ext = ".sieve"
	if len(base) > len(ext) && base[len(base)-len(ext):] == ext {
		base = base[:len(base)-len(ext)]
	}
	return base, true, nil
}

func (s *Storage) ActiveScriptOpen(ctx context.Context) (script.Script, error) {
	name, ok, err := s.ActiveScriptName(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("filedriver: no active script")
	}
	return s.GetScript(ctx, name)
}

func (s *Storage) Deactivate(_ context.Context) error {
	err := os.Remove(s.activePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filedriver: removing active-script link: %w", err)
	}
	return nil
}

// QuotaHaveSpace reports true unconditionally; a host wanting quotas
// wraps Storage rather than configuring one here (spec.md leaves quota
// policy to the driver, and the file driver has none by default).
func (s *Storage) QuotaHaveSpace(_ context.Context, _ int64) (bool, error) { return true, nil }

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Watch starts an fsnotify watch on script_active_path's directory,
// calling onActivate(name) whenever the active-script symlink is
// replaced out of band (spec.md §4.11 "a host process picks up
// out-of-band activate() calls"). The watch runs until ctx is cancelled.
func (s *Storage) Watch(ctx context.Context, onActivate func(name string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filedriver: creating watcher: %w", err)
	}
	dir := filepath.Dir(s.activePath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("filedriver: watching %s: %w", dir, err)
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.activePath {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if name, active, err := s.ActiveScriptName(ctx); err == nil && active {
					onActivate(name)
				}
			case <-w.Errors:
				continue
			}
		}
	}()
	return nil
}

// atomicWrite writes data to path via a temp file plus rename, so a
// concurrent reader never observes a partial write.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filedriver: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filedriver: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filedriver: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filedriver: renaming temp file into place: %w", err)
	}
	return nil
}

// handle implements script.Script over one file-backed entry.
type handle struct {
	s    *Storage
	name string
}

func (h *handle) Name() string { return h.name }

func (h *handle) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(h.s.sourcePath(h.name))
}

func (h *handle) GetStream(ctx context.Context) (io.ReadCloser, error) { return h.Open(ctx) }

func (h *handle) BinaryReadMetadata(_ context.Context) (*script.Metadata, script.LoadVerdict, error) {
	b, err := os.ReadFile(h.s.metaPath(h.name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, script.Stale, nil
		}
		return nil, script.Corrupt, fmt.Errorf("filedriver: reading metadata: %w", err)
	}
	var m script.Metadata
	if err := cbor.Unmarshal(b, &m); err != nil {
		return nil, script.Corrupt, fmt.Errorf("filedriver: decoding metadata: %w", err)
	}
	return &m, h.verdict(&m), nil
}

// verdict compares the source file's current mtime against the mtime
// recorded when the binary was saved.
func (h *handle) verdict(m *script.Metadata) script.LoadVerdict {
	fi, err := os.Stat(h.s.sourcePath(h.name))
	if err != nil {
		return script.Corrupt
	}
	if fi.ModTime().UnixNano() != m.SourceModTime {
		return script.Stale
	}
	return script.UpToDate
}

func (h *handle) BinaryWriteMetadata(_ context.Context, m *script.Metadata) error {
	b, err := cbor.Marshal(m)
	if err != nil {
		return fmt.Errorf("filedriver: encoding metadata: %w", err)
	}
	return atomicWrite(h.s.metaPath(h.name), b)
}

func (h *handle) BinaryLoad(_ context.Context) ([]byte, script.LoadVerdict, error) {
	m, verdict, err := h.BinaryReadMetadata(context.Background())
	if err != nil || verdict != script.UpToDate {
		return nil, verdict, err
	}
	b, err := os.ReadFile(h.s.binPath(h.name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, script.Stale, nil
		}
		return nil, script.Corrupt, fmt.Errorf("filedriver: reading compiled binary: %w", err)
	}
	return b, script.UpToDate, nil
}

func (h *handle) BinarySave(_ context.Context, compiled []byte, m *script.Metadata) error {
	fi, err := os.Stat(h.s.sourcePath(h.name))
	if err != nil {
		return fmt.Errorf("filedriver: statting source: %w", err)
	}
	driverBytes, err := cbor.Marshal(driverMeta{Path: h.s.sourcePath(h.name), ModTime: fi.ModTime().UnixNano()})
	if err != nil {
		return fmt.Errorf("filedriver: encoding driver metadata: %w", err)
	}
	m.DriverName = "file"
	m.StorageVer = storageVersion
	m.StorageName = h.s.name
	m.ScriptName = h.name
	m.Driver = driverBytes
	m.SourceModTime = fi.ModTime().UnixNano()

	if err := atomicWrite(h.s.binPath(h.name), compiled); err != nil {
		return err
	}
	return h.BinaryWriteMetadata(context.Background(), m)
}

func (h *handle) Rename(_ context.Context, newName string) error {
	if err := script.ValidateName(newName); err != nil {
		return err
	}
	wasActive, _ := h.IsActive(context.Background())
	if err := os.Rename(h.s.sourcePath(h.name), h.s.sourcePath(newName)); err != nil {
		return fmt.Errorf("filedriver: renaming source: %w", err)
	}
	_ = os.Rename(h.s.binPath(h.name), h.s.binPath(newName))
	_ = os.Rename(h.s.metaPath(h.name), h.s.metaPath(newName))
	h.name = newName
	if wasActive {
		if err := h.Activate(context.Background()); err != nil {
			return fmt.Errorf("filedriver: re-activating renamed script: %w", err)
		}
	}
	return nil
}

func (h *handle) Delete(_ context.Context) error {
	if active, _ := h.IsActive(context.Background()); active {
		return fmt.Errorf("filedriver: cannot delete the active script %q", h.name)
	}
	if err := os.Remove(h.s.sourcePath(h.name)); err != nil {
		return fmt.Errorf("filedriver: removing source: %w", err)
	}
	_ = os.Remove(h.s.binPath(h.name))
	_ = os.Remove(h.s.metaPath(h.name))
	return nil
}

func (h *handle) Activate(_ context.Context) error {
	if _, err := os.Stat(h.s.sourcePath(h.name)); err != nil {
		return fmt.Errorf("filedriver: activating %q: %w", h.name, err)
	}
	dir := filepath.Dir(h.s.activePath)
	tmpLink := filepath.Join(dir, fmt.Sprintf(".active-%d", time.Now().UnixNano()))
	if err := os.Symlink(h.s.sourcePath(h.name), tmpLink); err != nil {
		return fmt.Errorf("filedriver: creating temp symlink: %w", err)
	}
	if err := os.Rename(tmpLink, h.s.activePath); err != nil {
		os.Remove(tmpLink)
		return fmt.Errorf("filedriver: activating %q: %w", h.name, err)
	}
	return nil
}

func (h *handle) IsActive(ctx context.Context) (bool, error) {
	name, ok, err := h.s.ActiveScriptName(ctx)
	if err != nil {
		return false, err
	}
	return ok && name == h.name, nil
}

func (h *handle) Cmp(other script.Script) bool {
	o, ok := other.(*handle)
	return ok && o.s == h.s && o.name == h.name
}
