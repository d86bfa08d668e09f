package keyset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	jose "github.com/go-jose/go-jose/v4"
)

// FromFile loads a JWKS document from a local file. This serves deployments
// where the gateway has no egress to the identity provider and keys are
// distributed out of band (e.g. mounted secrets).
func FromFile(path string, opts ...Option) (*Set, error) {
	if path == "" {
		return nil, errors.New("keyset: file path is required")
	}

	s := &Set{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	ks, err := readKeysFile(path)
	if err != nil {
		return nil, err
	}
	s.keys.Store(ks)
	return s, nil
}

// Watch reloads the file-backed set whenever the file is written or replaced
// (mounted-secret updates arrive as renames). A reload that fails to parse
// keeps the previous keys. It blocks until ctx is canceled; run it on its own
// goroutine.
func (s *Set) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("keyset: set is not file-backed")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("keyset: watcher init failed: %w", err)
	}
	defer func() {
		// Best-effort watcher close; no actionable error handling path.
		_ = w.Close()
	}()

	// Watch the parent directory so atomic rename-into-place is observed.
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("keyset: watch %s: %w", dir, err)
	}
	base := filepath.Base(s.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			ks, err := readKeysFile(s.path)
			if err != nil {
				s.log.WarnContext(ctx, "keyset.reload.fail", slog.String("err", err.Error()))
				continue
			}
			s.keys.Store(ks)
			s.log.InfoContext(ctx, "keyset.reload.ok", slog.Int("keys", len(ks.Keys)))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.WarnContext(ctx, "keyset.watch.err", slog.String("err", err.Error()))
		}
	}
}

func readKeysFile(path string) (*jose.JSONWebKeySet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyset: read %s: %w", path, err)
	}
	var ks jose.JSONWebKeySet
	if err := json.Unmarshal(b, &ks); err != nil {
		return nil, fmt.Errorf("keyset: invalid jwks file %s: %w", path, err)
	}
	if len(ks.Keys) == 0 {
		return nil, fmt.Errorf("keyset: jwks file %s contains no keys", path)
	}
	return &ks, nil
}
