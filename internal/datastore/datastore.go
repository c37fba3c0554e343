// Package datastore persists a single JSON document on disk. Every save
// rewrites the whole document atomically (temp file, fsync, rename) and
// keeps a few timestamped backups of the previous version.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var (
	// ErrCorrupt wraps a decode failure of an existing document.
	ErrCorrupt = errors.New("corrupt document")
	// ErrReadOnly is returned by writes on a read-only File.
	ErrReadOnly = errors.New("document opened read-only")
)

type Config struct {
	FilePath    string
	BackupCount int // number of backup files to keep, 0 disables backups
	Indent      string
	// ReadOnly files never create directories or write.
	ReadOnly bool
}

func DefaultConfig(filePath string) Config {
	return Config{
		FilePath:    filePath,
		BackupCount: 3,
		Indent:      "  ",
	}
}

// File is a JSON document on disk. It is safe for concurrent use; callers
// that need read-modify-write semantics must serialise on their own.
type File struct {
	mu           sync.Mutex
	cfg          Config
	lastChecksum string
	now          func() time.Time
}

func New(filePath string) (*File, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

func NewWithConfig(cfg Config) (*File, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("file path cannot be empty")
	}
	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	return &File{cfg: cfg, now: time.Now}, nil
}

func (f *File) Path() string { return f.cfg.FilePath }

// Load decodes the document into v. A missing or empty file leaves v
// untouched and reports found=false. A file that cannot be decoded returns
// an error wrapping ErrCorrupt.
func (f *File) Load(v any) (found bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.cfg.FilePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", f.cfg.FilePath, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.cfg.FilePath, err)
	}
	f.lastChecksum = checksum(data)
	return true, nil
}

// Save encodes v and replaces the document. Unchanged content is not
// rewritten.
func (f *File) Save(v any) error {
	if f.cfg.ReadOnly {
		return ErrReadOnly
	}
	data, err := json.MarshalIndent(v, "", f.cfg.Indent)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sum := checksum(data)
	if sum == f.lastChecksum {
		return nil
	}
	if f.cfg.BackupCount > 0 {
		// a failed backup must not block the write
		_ = f.createBackup()
	}
	if err := writeFileAtomic(f.cfg.FilePath, data); err != nil {
		return err
	}
	f.lastChecksum = sum
	return nil
}

// Quarantine copies the current file aside with a .corrupt suffix so a
// subsequent Save does not destroy it.
func (f *File) Quarantine() (string, error) {
	if f.cfg.ReadOnly {
		return "", ErrReadOnly
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	dst := fmt.Sprintf("%s.corrupt.%s", f.cfg.FilePath, f.now().Format("20060102_150405"))
	if err := copyFile(f.cfg.FilePath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (f *File) createBackup() error {
	if _, err := os.Stat(f.cfg.FilePath); err != nil {
		return nil
	}
	backup := fmt.Sprintf("%s.backup.%s", f.cfg.FilePath, f.now().Format("20060102_150405.000"))
	if err := copyFile(f.cfg.FilePath, backup); err != nil {
		return err
	}
	f.cleanupOldBackups()
	return nil
}

func (f *File) cleanupOldBackups() {
	matches, err := filepath.Glob(f.cfg.FilePath + ".backup.*")
	if err != nil || len(matches) <= f.cfg.BackupCount {
		return
	}
	// names embed the timestamp, so lexical order is chronological
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-f.cfg.BackupCount] {
		os.Remove(old)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
