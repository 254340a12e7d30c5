package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oshokin/formulary/internal/config"
	domain "github.com/oshokin/formulary/internal/domain/formula"
)

const receiptExt = ".json"

// Repository defines persistence operations for installation receipts.
type Repository interface {
	Load(ctx context.Context, name string) (*domain.Receipt, error)
	Save(ctx context.Context, receipt *domain.Receipt) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*domain.Receipt, error)
}

// FileRepository persists receipts as <dir>/<name>.json.
type FileRepository struct {
	// dir is the directory holding receipt files.
	dir string
	// mu protects concurrent access to the receipt files.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no receipt exists for a package.
	ErrNotFound = errors.New("receipt not found")

	errNameRequired = errors.New("receipt name must be provided")
)

// NewFileRepository creates a repository that reads and writes receipts in dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{
		dir: filepath.Clean(dir),
	}
}

// Load reads the receipt of one package.
func (r *FileRepository) Load(_ context.Context, name string) (*domain.Receipt, error) {
	if name == "" {
		return nil, errNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.read(r.path(name))
}

// Save writes the receipt through a temporary file so readers never see a partial document.
func (r *FileRepository) Save(_ context.Context, receipt *domain.Receipt) error {
	if receipt == nil || receipt.Name == "" {
		return errNameRequired
	}

	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = os.MkdirAll(r.dir, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create receipts directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+receipt.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create receipt file: %w", err)
	}

	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Chmod(tmpPath, config.DefaultFilePermissions)
	}

	if err == nil {
		err = os.Rename(tmpPath, r.path(receipt.Name))
	}

	if err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("write receipt file: %w", err)
	}

	return nil
}

// Delete removes the receipt of one package.
func (r *FileRepository) Delete(_ context.Context, name string) error {
	if name == "" {
		return errNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}

		return fmt.Errorf("delete receipt file: %w", err)
	}

	return nil
}

// List returns all receipts sorted by package name.
func (r *FileRepository) List(_ context.Context) ([]*domain.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read receipts directory: %w", err)
	}

	var receipts []*domain.Receipt

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != receiptExt {
			continue
		}

		receipt, err := r.read(filepath.Join(r.dir, name))
		if err != nil {
			return nil, err
		}

		receipts = append(receipts, receipt)
	}

	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].Name < receipts[j].Name
	})

	return receipts, nil
}

func (r *FileRepository) read(path string) (*domain.Receipt, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read receipt file: %w", err)
	}

	var receipt domain.Receipt
	if err = json.Unmarshal(contents, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt file %s: %w", filepath.Base(path), err)
	}

	return &receipt, nil
}

func (r *FileRepository) path(name string) string {
	return filepath.Join(r.dir, name+receiptExt)
}
