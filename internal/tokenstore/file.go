package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// tokenFileMode is the only permission set accepted for token files.
const tokenFileMode os.FileMode = 0600

// FileStore keeps a token in a local file readable by its owner only.
// Writes use temp file + rename so a crash never leaves a truncated token behind.
type FileStore struct {
	filePath string
}

// Compile-time check to ensure FileStore implements TokenStore
var _ TokenStore = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("creating token directory: %w", err)
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Read returns the stored token after trimming whitespace. Returns error if the file
// doesn't exist, is empty, or is accessible by anyone but its owner.
func (f *FileStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s does not exist", ErrNotFound, f.filePath)
	}
	if err != nil {
		return "", err
	}
	if perm := info.Mode().Perm(); perm != tokenFileMode {
		return "", fmt.Errorf("insecure permissions on %s: %04o (expected %04o)", f.filePath, perm, tokenFileMode)
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: empty token file %s", ErrNotFound, f.filePath)
	}
	return token, nil
}

// Write atomically replaces the token file and leaves it with 0600 permissions.
func (f *FileStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to write empty token to %s", f.filePath)
	}

	// Temp file in the same directory so the rename stays on one filesystem
	tempFile, err := os.CreateTemp(filepath.Dir(f.filePath), "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths; both are no-ops after a successful rename
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if err := tempFile.Chmod(tokenFileMode); err != nil {
		return err
	}
	if _, err := tempFile.WriteString(token + "\n"); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempName, f.filePath)
}
