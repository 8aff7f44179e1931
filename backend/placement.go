package backend

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Placement moves finished artifacts out of the scratch directory into the
// destination and tags filenames with a descriptive suffix.

// ErrArtifactNotFound is returned when a finished transfer left nothing
// usable in the scratch directory.
var ErrArtifactNotFound = errors.New("no artifact found in scratch directory")

// ResolveArtifact locates the produced file in dir. A file whose extension
// matches targetExt wins outright; otherwise the largest regular file is
// taken.
func ResolveArtifact(dir, targetExt string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading scratch directory: %w", err)
	}

	wantExt := "." + strings.TrimPrefix(strings.ToLower(targetExt), ".")

	var largest string
	var largestSize int64 = -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(filepath.Ext(name), wantExt) {
			return filepath.Join(dir, name), nil
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > largestSize {
			largestSize = info.Size()
			largest = name
		}
	}

	if largest == "" {
		return "", ErrArtifactNotFound
	}
	return filepath.Join(dir, largest), nil
}

// MoveOverwrite moves src into destDir, replacing any existing file with
// the same name. Falls back to copy-and-remove when rename crosses
// filesystems.
func MoveOverwrite(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating destination: %w", err)
	}

	dest := filepath.Join(destDir, filepath.Base(src))
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("replacing existing file: %w", err)
	}

	if err := os.Rename(src, dest); err != nil {
		if err := copyFile(src, dest); err != nil {
			return "", fmt.Errorf("moving artifact: %w", err)
		}
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("removing source after copy: %w", err)
		}
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var unsafeSuffixChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeSuffix strips characters that are unsafe in filenames from a
// suffix and trims trailing dots.
func SanitizeSuffix(suffix string) string {
	s := unsafeSuffixChars.ReplaceAllString(suffix, "_")
	s = strings.TrimSpace(s)
	return strings.TrimRight(s, ".")
}

// ApplySuffix renames path so its base name carries the given suffix before
// the extension. Idempotent: a file already ending with the suffix is left
// alone. An empty suffix (after sanitizing) is a no-op.
func ApplySuffix(path, suffix string) (string, error) {
	suffix = SanitizeSuffix(suffix)
	if suffix == "" {
		return path, nil
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	if strings.HasSuffix(base, suffix) {
		return path, nil
	}

	renamed := filepath.Join(dir, base+" "+suffix+ext)
	if err := os.Rename(path, renamed); err != nil {
		return "", fmt.Errorf("applying suffix: %w", err)
	}
	return renamed, nil
}

// ApplySuffixToRecentFiles walks root and applies the suffix to every file
// with the target extension modified at or after cutoff. Used after
// collection transfers, where the engine writes many files directly into
// the destination. Returns the number of files renamed.
func ApplySuffixToRecentFiles(root, targetExt, suffix string, cutoff time.Time) int {
	wantExt := "." + strings.TrimPrefix(strings.ToLower(targetExt), ".")

	renamed := 0
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), wantExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			return nil
		}
		if _, err := ApplySuffix(path, suffix); err == nil {
			renamed++
		}
		return nil
	})
	return renamed
}
