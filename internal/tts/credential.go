package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// CredentialProvider supplies the backend credential. An empty string
// means none is available.
type CredentialProvider interface {
	Credential() string
}

// StaticCredential is a fixed credential.
type StaticCredential string

// Credential implements CredentialProvider.
func (s StaticCredential) Credential() string {
	return strings.TrimSpace(string(s))
}

// FileCredential reads the credential from a file and keeps it current
// while Watch runs.
type FileCredential struct {
	path string

	mu    sync.RWMutex
	value string

	logger *log.Logger
}

// NewFileCredential reads path. A missing file is not an error; the
// credential is empty until the file appears.
func NewFileCredential(path string, logger *log.Logger) (*FileCredential, error) {
	if logger == nil {
		logger = log.Default()
	}
	f := &FileCredential{path: path, logger: logger}
	if err := f.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return f, nil
}

// Credential implements CredentialProvider.
func (f *FileCredential) Credential() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// Path returns the watched file.
func (f *FileCredential) Path() string {
	return f.path
}

// Watch follows changes to the file until ctx ends. onChange is called
// with the new credential after each change. The directory is watched so
// that editors replacing the file are seen.
func (f *FileCredential) Watch(ctx context.Context, onChange func(credential string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close() //nolint:errcheck
		name := filepath.Clean(f.path)

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}

				before := f.Credential()
				if err := f.reload(); err != nil && !os.IsNotExist(err) {
					f.logger.Warn("unable to read credential file", "path", f.path, "err", err)
					continue
				}
				if after := f.Credential(); after != before && onChange != nil {
					onChange(after)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("credential watcher error", "err", err)
			}
		}
	}()

	return nil
}

func (f *FileCredential) reload() error {
	b, err := os.ReadFile(f.path)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.value = ""
		return err
	}
	f.value = strings.TrimSpace(string(b))
	return nil
}
