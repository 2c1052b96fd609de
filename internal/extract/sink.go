// Package extract restores archive entries into a destination directory
// all at once.
//
// Entries are first written into a staging directory created inside the
// destination. Only after every entry has been written and verified are
// they renamed into place. A failed rename is rolled back, so a failed
// extraction leaves the destination as it was.
package extract

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/meigma/templatex/internal/blobtype"
)

// stagingPrefix names staging directories: ".templatex-staging-<uuid>".
const stagingPrefix = ".templatex-staging-"

// replacedSuffix names the directory holding files replaced during Commit.
const replacedSuffix = "-replaced"

// Sink stages entries for an all-or-nothing extraction.
type Sink struct {
	dest          string
	staging       string
	root          *os.Root
	overwrite     bool
	preserveMode  bool
	preserveTimes bool
	logger        *slog.Logger
	staged        []blobtype.Entry
	done          bool
}

// Option configures a Sink.
type Option func(*Sink)

// WithOverwrite allows replacing existing files. When disabled, entries
// whose destination already exists are left untouched.
func WithOverwrite(overwrite bool) Option {
	return func(s *Sink) {
		s.overwrite = overwrite
	}
}

// WithPreserveMode applies the archived permission bits.
func WithPreserveMode(preserve bool) Option {
	return func(s *Sink) {
		s.preserveMode = preserve
	}
}

// WithPreserveTimes applies the archived modification times.
func WithPreserveTimes(preserve bool) Option {
	return func(s *Sink) {
		s.preserveTimes = preserve
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// NewSink creates dest if needed and a fresh staging directory inside it.
// The caller must call Commit or Discard.
func NewSink(dest string, opts ...Option) (*Sink, error) {
	s := &Sink{dest: dest}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return nil, err
	}
	s.root = root

	s.staging = stagingPrefix + uuid.NewString()
	if err := root.Mkdir(s.staging, 0o700); err != nil {
		root.Close()
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	s.log().Debug("staging extraction", "dest", dest, "staging", s.staging)
	return s, nil
}

func (s *Sink) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Dest returns the destination directory.
func (s *Sink) Dest() string {
	return s.dest
}

// Write stages entry, filling its content with fill. A fill error leaves
// the sink usable only for Discard.
func (s *Sink) Write(entry *blobtype.Entry, fill func(w io.Writer) error) error {
	if s.done {
		return errors.New("sink already finished")
	}
	if !s.overwrite && s.exists(entry.Path) {
		s.log().Debug("skipping existing file", "path", entry.Path)
		return nil
	}

	name := s.stagedPath(entry.Path)
	if err := s.root.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return fmt.Errorf("stage %s: %w", entry.Path, err)
	}
	f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("stage %s: %w", entry.Path, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("stage %s: %w", entry.Path, err)
	}
	s.staged = append(s.staged, *entry)
	return nil
}

// Commit moves every staged entry into place and removes the staging
// directory. It returns the number of entries committed.
//
// Every destination path is checked for conflicts before the first rename.
// If a rename still fails, entries already moved are taken back out, the
// files they replaced are restored and directories created for them are
// removed, so the destination is left as it was.
func (s *Sink) Commit() (int, error) {
	if s.done {
		return 0, errors.New("sink already finished")
	}
	defer s.finish()

	if err := s.checkConflicts(); err != nil {
		return 0, err
	}

	var undo []func() error
	for i := range s.staged {
		if err := s.commitEntry(i, &undo); err != nil {
			s.rollback(undo)
			return 0, err
		}
	}
	s.log().Debug("extraction committed", "dest", s.dest, "files", len(s.staged))
	return len(s.staged), nil
}

// checkConflicts fails when an entry would replace a directory or needs a
// directory where a non-directory exists.
func (s *Sink) checkConflicts() error {
	for i := range s.staged {
		p := s.staged[i].Path
		final := filepath.FromSlash(p)
		if info, err := s.root.Lstat(final); err == nil && info.IsDir() {
			return fmt.Errorf("extract %s: destination is a directory", p)
		}
		for dir := filepath.Dir(final); dir != "."; dir = filepath.Dir(dir) {
			info, err := s.root.Stat(dir)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				return fmt.Errorf("extract %s: %s is not a directory", p, filepath.ToSlash(dir))
			}
		}
	}
	return nil
}

// commitEntry renames staged entry i into place, appending the steps that
// reverse it to undo.
func (s *Sink) commitEntry(i int, undo *[]func() error) error {
	e := &s.staged[i]
	staged := s.stagedPath(e.Path)
	final := filepath.FromSlash(e.Path)

	if s.preserveMode {
		if err := s.root.Chmod(staged, e.Mode.Perm()); err != nil {
			return fmt.Errorf("chmod %s: %w", e.Path, err)
		}
	}
	if s.preserveTimes && !e.ModTime.IsZero() {
		if err := s.root.Chtimes(staged, e.ModTime, e.ModTime); err != nil {
			return fmt.Errorf("chtimes %s: %w", e.Path, err)
		}
	}
	if dir := filepath.Dir(final); dir != "." {
		if err := s.mkdirAll(dir, undo); err != nil {
			return fmt.Errorf("create directory for %s: %w", e.Path, err)
		}
	}
	if info, err := s.root.Lstat(final); err == nil {
		if info.IsDir() {
			return fmt.Errorf("extract %s: destination is a directory", e.Path)
		}
		backup, err := s.backupPath(i)
		if err != nil {
			return fmt.Errorf("replace %s: %w", e.Path, err)
		}
		if err := s.root.Rename(final, backup); err != nil {
			return fmt.Errorf("replace %s: %w", e.Path, err)
		}
		*undo = append(*undo, func() error { return s.root.Rename(backup, final) })
	}
	if err := s.root.Rename(staged, final); err != nil {
		return fmt.Errorf("rename %s: %w", e.Path, err)
	}
	*undo = append(*undo, func() error { return s.root.Rename(final, staged) })
	return nil
}

// mkdirAll creates dir and its missing parents, appending their removal
// to undo.
func (s *Sink) mkdirAll(dir string, undo *[]func() error) error {
	var missing []string
	for d := dir; d != "."; d = filepath.Dir(d) {
		if _, err := s.root.Lstat(d); err == nil {
			break
		}
		missing = append(missing, d)
	}
	if err := s.root.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	for _, d := range slices.Backward(missing) {
		*undo = append(*undo, func() error { return s.root.Remove(d) })
	}
	return nil
}

// backupPath returns where the file replaced by entry i is kept until the
// commit completes.
func (s *Sink) backupPath(i int) (string, error) {
	dir := s.staging + replacedSuffix
	if err := s.root.Mkdir(dir, 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", err
	}
	return filepath.Join(dir, strconv.Itoa(i)), nil
}

// rollback runs undo in reverse.
func (s *Sink) rollback(undo []func() error) {
	for _, step := range slices.Backward(undo) {
		if err := step(); err != nil {
			s.log().Warn("rollback step failed", "dest", s.dest, "error", err)
		}
	}
}

// Discard removes the staging directory and everything written to it.
func (s *Sink) Discard() error {
	if s.done {
		return nil
	}
	return s.finish()
}

func (s *Sink) finish() error {
	s.done = true
	err := s.root.RemoveAll(s.staging)
	if rmErr := s.root.RemoveAll(s.staging + replacedSuffix); err == nil {
		err = rmErr
	}
	if closeErr := s.root.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (s *Sink) stagedPath(p string) string {
	return filepath.Join(s.staging, filepath.FromSlash(p))
}

func (s *Sink) exists(p string) bool {
	_, err := s.root.Lstat(filepath.FromSlash(p))
	return !errors.Is(err, fs.ErrNotExist)
}
