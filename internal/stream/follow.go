package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/treecep/internal/ir"
)

// FollowSource tails a JSONL file, yielding lines as they are appended.
// When a new file is created at the path (log rotation, or an editor
// saving through a rename), the old file is drained and the new one is
// read from its start. It ends when ctx is done or, with an idle timeout,
// once the file has not grown for that long.
type FollowSource struct {
	path     string
	file     *os.File
	reader   *bufio.Reader
	watcher  *fsnotify.Watcher
	partial  []byte
	line     int
	idle     time.Duration
	replaced bool
}

// FollowOption configures a FollowSource.
type FollowOption func(*FollowSource)

// WithIdleTimeout ends the source with io.EOF after d without writes.
func WithIdleTimeout(d time.Duration) FollowOption {
	return func(s *FollowSource) {
		s.idle = d
	}
}

// Follow opens path for tailing. Lines already present are read first.
func Follow(path string, opts ...FollowOption) (*FollowSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so a file created at path is seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		f.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	s := &FollowSource{path: abs, file: f, reader: bufio.NewReader(f), watcher: w}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next implements Source.
func (s *FollowSource) Next(ctx context.Context) (*ir.Event, error) {
	for {
		chunk, err := s.reader.ReadBytes('\n')
		s.partial = append(s.partial, chunk...)
		switch {
		case err == nil:
			data := s.partial
			s.partial = nil
			s.line++
			if len(bytes.TrimSpace(data)) == 0 {
				continue
			}
			return decodeEvent(data, s.line)
		case err != io.EOF:
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}

		if s.replaced {
			// The old file is drained; its unterminated tail is its last line.
			data := s.partial
			s.partial = nil
			reopened, err := s.reopen()
			if err != nil {
				return nil, err
			}
			if len(bytes.TrimSpace(data)) > 0 {
				s.line++
				return decodeEvent(data, s.line)
			}
			if reopened {
				continue
			}
		}

		if err := s.wait(ctx); err != nil {
			if err == io.EOF && len(bytes.TrimSpace(s.partial)) > 0 {
				data := s.partial
				s.partial = nil
				s.line++
				return decodeEvent(data, s.line)
			}
			return nil, err
		}
	}
}

// wait blocks until the followed file is written.
func (s *FollowSource) wait(ctx context.Context) error {
	var timeout <-chan time.Time
	if s.idle > 0 {
		timer := time.NewTimer(s.idle)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return io.EOF
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return io.EOF
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if name, err := filepath.Abs(ev.Name); err != nil || name != s.path {
				continue
			}
			if ev.Has(fsnotify.Create) {
				s.replaced = true
			}
			return nil
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return io.EOF
			}
			return fmt.Errorf("watch %s: %w", s.path, err)
		}
	}
}

// reopen switches to the file now at path. It reports false, leaving the
// current file in place, when nothing exists there yet.
func (s *FollowSource) reopen() (bool, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reopen %s: %w", s.path, err)
	}
	s.file.Close()
	s.file = f
	s.reader.Reset(f)
	s.replaced = false
	slog.Info("followed file replaced, reading from start", "path", s.path)
	return true, nil
}

// Close stops watching and closes the file.
func (s *FollowSource) Close() error {
	werr := s.watcher.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return werr
}
