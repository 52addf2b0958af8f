package render

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// FileDigest returns the blake3 hex digest of the file at
// path, or "" when the file does not exist.
func FileDigest(path string) (result string, retErr error) {
	const errCtx = "calculating digest"

	fi, err := os.Open(path) //nolint:gosec // path from caller
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := fi.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	ha := blake3.New()

	if _, err := io.Copy(ha, fi); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return hex.EncodeToString(ha.Sum(nil)), nil
}

// Digest returns the blake3 hex digest of content.
func Digest(content string) string {
	sum := blake3.Sum256([]byte(content))

	return hex.EncodeToString(sum[:])
}

// WriteFile writes content to path unless the file already
// holds exactly that content, and reports whether it wrote.
// The file is replaced atomically through a temporary file
// in the same directory.
func WriteFile(path string, content string, mode fs.FileMode) (bool, error) {
	const errCtx = "writing rendered file"

	current, err := FileDigest(path)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if current != "" && current == Digest(content) {
		return false, nil
	}

	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // config output tree
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	tmpName := tmp.Name()

	if err := writeAndClose(tmp, content, mode); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup

		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup

		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return true, nil
}

func writeAndClose(fi *os.File, content string, mode fs.FileMode) error {
	if _, err := io.WriteString(fi, content); err != nil {
		_ = fi.Close() //nolint:errcheck // write error wins

		return err
	}

	if err := fi.Chmod(mode); err != nil {
		_ = fi.Close() //nolint:errcheck // chmod error wins

		return err
	}

	return fi.Close()
}
