// Package files holds the filesystem primitives shared by the file and patch tools:
// path resolution against the session directory, bounded UTF-8 reads and
// atomic writes serialized per file.
package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// DefaultMaxReadBytes bounds ReadText when the caller passes no limit.
const DefaultMaxReadBytes = 16 * 1024 * 1024

// TruncationNotice is appended to content cut by a character limit.
const TruncationNotice = "\n\n(content truncated due to size limit)"

// Resolve makes path absolute. A leading ~ expands to the home directory and
// relative paths are joined to base.
func Resolve(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	return filepath.Clean(path)
}

// ReadText reads a whole file and checks that it is UTF-8 text.
func ReadText(path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReadBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", statError(path, err)
	}
	if info.IsDir() {
		return "", apperrors.NewBuilder(apperrors.CodeFileReadFailed, "path is a directory: "+path).
			User().WithContext("path", path).Build()
	}
	if info.Size() > maxBytes {
		return "", apperrors.NewBuilder(apperrors.CodeFileReadFailed,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), maxBytes)).
			User().WithContext("path", path).Build()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeFileReadFailed, "reading "+path, apperrors.CategorySystem)
	}
	if !utf8.Valid(data) {
		return "", apperrors.NewBuilder(apperrors.CodeFileNotUTF8, "file is not valid UTF-8 text: "+path).
			User().WithContext("path", path).Build()
	}
	return string(data), nil
}

func statError(path string, err error) error {
	if os.IsNotExist(err) {
		return apperrors.NewBuilder(apperrors.CodeFileNotFound, "file not found: "+path).
			User().Wrap(err).WithContext("path", path).
			WithSuggestion("Check the path relative to the current directory, or use an absolute path").
			Build()
	}
	return apperrors.Wrap(err, apperrors.CodeFileReadFailed, "stat "+path, apperrors.CategorySystem)
}

// Excerpt selects lines [offset, offset+limit) of content and then cuts the
// result to maxChars runes. A non-positive limit or maxChars means no limit.
// It also reports the total line count and whether anything was cut.
func Excerpt(content string, offset, limit, maxChars int) (string, int, bool) {
	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	total := len(lines)

	truncated := false
	if offset > 0 || limit > 0 {
		if offset < 0 {
			offset = 0
		}
		if offset > total {
			offset = total
		}
		end := total
		if limit > 0 && offset+limit < total {
			end = offset + limit
			truncated = true
		}
		truncated = truncated || offset > 0
		content = strings.Join(lines[offset:end], "")
	}

	if maxChars > 0 && utf8.RuneCountInString(content) > maxChars {
		cut := 0
		for i := range content {
			if cut == maxChars {
				content = content[:i]
				break
			}
			cut++
		}
		content += TruncationNotice
		truncated = true
	}
	return content, total, truncated
}

// Locker hands out one mutex per absolute path.
type Locker struct {
	locks sync.Map // path -> *sync.Mutex
}

// Lock blocks until path is free and returns the unlock function.
func (l *Locker) Lock(path string) func() {
	mu, _ := l.locks.LoadOrStore(path, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// WriteAtomic replaces path with data. The content goes to a temporary file in
// the same directory, is synced and then renamed over the target, so readers
// see either the old or the new file. An existing file keeps its mode; a new
// one gets perm. Missing parent directories are created.
func WriteAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "creating "+dir, apperrors.CategorySystem)
	}

	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return apperrors.NewBuilder(apperrors.CodeFileWriteFailed, "path is a directory: "+path).
				User().WithContext("path", path).Build()
		}
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "creating temporary file", apperrors.CategorySystem)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "writing "+path, apperrors.CategorySystem)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "syncing "+path, apperrors.CategorySystem)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "closing "+path, apperrors.CategorySystem)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "chmod "+path, apperrors.CategorySystem)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileWriteFailed, "renaming into "+path, apperrors.CategorySystem)
	}
	committed = true
	return nil
}
