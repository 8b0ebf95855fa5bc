// Package files applies uploads, deletions and folder changes to the
// documents root. Every mutation is refused while ingestion runs.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// Gate runs a mutation unless ingestion holds the file lock.
// ingest.Manager implements it.
type Gate interface {
	Guard(op string, fn func() error) error
}

// Remover drops a document's index records and catalog row.
// index.Pipeline implements it.
type Remover interface {
	RemoveDocument(ctx context.Context, filename string) error
}

// Config wires a Service.
type Config struct {
	// Root is the documents directory.
	Root string

	// Allowed reports whether a filename has an accepted extension.
	Allowed func(name string) bool

	// MaxBytes limits uploads. Zero means unlimited.
	MaxBytes int64

	Gate    Gate
	Catalog *store.Catalog
	Remover Remover

	Logger *slog.Logger
	Now    func() time.Time
}

// Entry is one item of the documents tree.
type Entry struct {
	Name    string    `json:"name"` // slash path relative to Root
	Dir     bool      `json:"dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Service mutates the documents root.
type Service struct {
	cfg Config
}

// New creates a Service. Root, Gate, Catalog and Remover are required.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Root == "":
		return nil, fmt.Errorf("documents root is required")
	case cfg.Gate == nil:
		return nil, fmt.Errorf("gate is required")
	case cfg.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case cfg.Remover == nil:
		return nil, fmt.Errorf("remover is required")
	}
	if cfg.Allowed == nil {
		cfg.Allowed = func(string) bool { return true }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg}, nil
}

// Upload stores r as name and registers it as pending. An existing file
// is replaced.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (*Entry, error) {
	rel, abs, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if !s.cfg.Allowed(rel) {
		return nil, docerrors.New(docerrors.ErrCodeUnsupportedType,
			fmt.Sprintf("file type %q is not allowed", filepath.Ext(rel)), nil).
			WithDetail("filename", rel)
	}

	// Only the rename and the catalog update run under the gate.
	staged, size, err := s.stage(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(staged) }()

	var entry *Entry
	err = s.cfg.Gate.Guard("upload", func() error {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.Rename(staged, abs); err != nil {
			return fmt.Errorf("failed to store upload: %w", err)
		}
		now := s.cfg.Now()
		if err := s.cfg.Catalog.MarkPending(ctx, rel, size, now); err != nil {
			return err
		}
		entry = &Entry{Name: rel, Size: size, ModTime: now}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Logger.Info("file_uploaded",
		slog.String("filename", rel),
		slog.Int64("size", entry.Size))
	return entry, nil
}

// stage copies r into a hidden temp file in the documents root, which
// discovery skips, and returns its path. The caller removes it.
func (s *Service) stage(r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.cfg.Root, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create documents root: %w", err)
	}

	tmp, err := os.CreateTemp(s.cfg.Root, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	src := r
	if s.cfg.MaxBytes > 0 {
		src = io.LimitReader(r, s.cfg.MaxBytes+1)
	}
	size, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("failed to write upload: %w", err)
	}
	if s.cfg.MaxBytes > 0 && size > s.cfg.MaxBytes {
		_ = os.Remove(tmp.Name())
		return "", 0, docerrors.New(docerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file exceeds the %d MB upload limit", s.cfg.MaxBytes/(1024*1024)), nil).
			WithDetail("max_bytes", strconv.FormatInt(s.cfg.MaxBytes, 10))
	}
	return tmp.Name(), size, nil
}

// Delete removes a document file, its catalog row and its index records.
func (s *Service) Delete(ctx context.Context, name string) error {
	rel, abs, err := s.resolve(name)
	if err != nil {
		return err
	}

	err = s.cfg.Gate.Guard("delete", func() error {
		info, err := os.Stat(abs)
		if err != nil {
			return notFound(rel, err)
		}
		if info.IsDir() {
			return docerrors.New(docerrors.ErrCodeInvalidPath, "path is a folder", nil).
				WithDetail("path", rel)
		}
		if err := os.Remove(abs); err != nil {
			return fmt.Errorf("failed to delete %s: %w", rel, err)
		}
		return s.cfg.Remover.RemoveDocument(ctx, rel)
	})
	if err != nil {
		return err
	}

	s.cfg.Logger.Info("file_deleted", slog.String("filename", rel))
	return nil
}

// CreateFolder creates a folder and any missing parents.
func (s *Service) CreateFolder(_ context.Context, name string) error {
	rel, abs, err := s.resolve(name)
	if err != nil {
		return err
	}

	err = s.cfg.Gate.Guard("create_folder", func() error {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Logger.Info("folder_created", slog.String("path", rel))
	return nil
}

// DeleteFolder removes a folder with its contents. Documents inside are
// dropped from the catalog and the index.
func (s *Service) DeleteFolder(ctx context.Context, name string) error {
	rel, abs, err := s.resolve(name)
	if err != nil {
		return err
	}

	removed := 0
	err = s.cfg.Gate.Guard("delete_folder", func() error {
		info, err := os.Stat(abs)
		if err != nil {
			return notFound(rel, err)
		}
		if !info.IsDir() {
			return docerrors.New(docerrors.ErrCodeInvalidPath, "path is not a folder", nil).
				WithDetail("path", rel)
		}

		docs, err := s.walk(abs)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("failed to delete folder %s: %w", rel, err)
		}
		for _, doc := range docs {
			if doc.Dir {
				continue
			}
			if err := s.cfg.Remover.RemoveDocument(ctx, doc.Name); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Logger.Info("folder_deleted",
		slog.String("path", rel),
		slog.Int("documents", removed))
	return nil
}

// List returns the documents tree, folders included, sorted by name.
// Listing never takes the file lock.
func (s *Service) List(_ context.Context) ([]Entry, error) {
	return s.walk(s.cfg.Root)
}

func (s *Service) walk(dir string) ([]Entry, error) {
	entries := []Entry{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.cfg.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !d.IsDir() && !s.cfg.Allowed(rel) {
			return nil
		}
		e := Entry{Name: rel, Dir: d.IsDir(), ModTime: info.ModTime()}
		if !e.Dir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) && dir == s.cfg.Root {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// resolve confines name to Root. It returns the slash path relative to
// Root and the absolute path.
func (s *Service) resolve(name string) (string, string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if name == "" || cleaned == "." || !filepath.IsLocal(cleaned) {
		return "", "", docerrors.New(docerrors.ErrCodeInvalidPath,
			"path must stay inside the documents folder", nil).
			WithDetail("path", name)
	}
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if strings.HasPrefix(part, ".") {
			return "", "", docerrors.New(docerrors.ErrCodeInvalidPath,
				"hidden paths are not allowed", nil).
				WithDetail("path", name)
		}
	}
	return filepath.ToSlash(cleaned), filepath.Join(s.cfg.Root, cleaned), nil
}

func notFound(rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return docerrors.New(docerrors.ErrCodeFileNotFound, "no such file or folder", err).
			WithDetail("path", rel)
	}
	return fmt.Errorf("failed to stat %s: %w", rel, err)
}
