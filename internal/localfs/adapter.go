package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/exclude"
)

// FileInfo describes one local file during enumeration.
type FileInfo struct {
	RelativePath string
	Size         int64
	LastWriteUtc time.Time
	Hash         string
	IsDir        bool
}

// Adapter is the local filesystem surface the sync engine consumes. All paths
// are slash-separated and relative to the mirror root.
type Adapter interface {
	OpenRead(relPath string) (io.ReadCloser, error)
	// WriteFile streams content to a temporary file and atomically finalizes
	// it into place, returning size and content hash of what was written.
	WriteFile(ctx context.Context, relPath string, content io.Reader, modTime time.Time) (int64, string, error)
	// DeleteFile removes a file; missing files are not an error.
	DeleteFile(relPath string) error
	// RenameAside moves a file out of the way with a suffix, for conflict
	// backups. Returns the new relative path.
	RenameAside(relPath, suffix string) (string, error)
	EnumerateFiles(ctx context.Context, matcher *exclude.Matcher) ([]FileInfo, error)
	GetFileInfo(relPath string) (*FileInfo, error)
}

// OSAdapter implements Adapter on the operating system filesystem.
type OSAdapter struct {
	root string
}

// NewOSAdapter creates an adapter rooted at the mirror directory.
func NewOSAdapter(root string) (*OSAdapter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, err
	}
	return &OSAdapter{root: abs}, nil
}

// Root returns the absolute mirror root.
func (a *OSAdapter) Root() string { return a.root }

func (a *OSAdapter) abs(relPath string) string {
	return filepath.Join(a.root, filepath.FromSlash(relPath))
}

// OpenRead opens a file for reading.
func (a *OSAdapter) OpenRead(relPath string) (io.ReadCloser, error) {
	return os.Open(a.abs(relPath))
}

// WriteFile streams content into a temp file next to the target, fsyncs, and
// renames into place so concurrent readers never observe a partial write.
func (a *OSAdapter) WriteFile(ctx context.Context, relPath string, content io.Reader, modTime time.Time) (written int64, hash string, err error) {
	target := a.abs(relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return 0, "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".partial-*")
	if err != nil {
		return 0, "", err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := sha256.New()
	written, err = copyWithContext(ctx, io.MultiWriter(tmp, hasher), content)
	if err != nil {
		return 0, "", err
	}
	if err = tmp.Sync(); err != nil {
		return 0, "", err
	}
	if err = tmp.Close(); err != nil {
		return 0, "", err
	}
	if !modTime.IsZero() {
		if err = os.Chtimes(tmpName, modTime, modTime); err != nil {
			return 0, "", err
		}
	}
	if err = os.Rename(tmpName, target); err != nil {
		return 0, "", err
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// DeleteFile removes a file, treating not-found as success.
func (a *OSAdapter) DeleteFile(relPath string) error {
	if err := os.Remove(a.abs(relPath)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RenameAside moves a file to "<base><suffix><ext>" beside itself.
func (a *OSAdapter) RenameAside(relPath, suffix string) (string, error) {
	ext := path.Ext(relPath)
	base := relPath[:len(relPath)-len(ext)]
	newRel := base + suffix + ext
	for i := 1; ; i++ {
		if _, err := os.Stat(a.abs(newRel)); os.IsNotExist(err) {
			break
		}
		newRel = fmt.Sprintf("%s%s-%d%s", base, suffix, i, ext)
	}
	if err := os.Rename(a.abs(relPath), a.abs(newRel)); err != nil {
		return "", err
	}
	return newRel, nil
}

// EnumerateFiles walks the mirror root, skipping symlinks and excluded paths.
func (a *OSAdapter) EnumerateFiles(ctx context.Context, matcher *exclude.Matcher) ([]FileInfo, error) {
	var entries []FileInfo

	err := filepath.WalkDir(a.root, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(a.root, current)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = path.Clean(filepath.ToSlash(rel))

		if matcher != nil && matcher.IsExcluded(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			entries = append(entries, FileInfo{
				RelativePath: rel,
				Size:         info.Size(),
				LastWriteUtc: info.ModTime().UTC(),
			})
			return nil
		}
		if info.IsDir() {
			entries = append(entries, FileInfo{
				RelativePath: rel,
				LastWriteUtc: info.ModTime().UTC(),
				IsDir:        true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetFileInfo stats a single file, returning nil when it does not exist.
func (a *OSAdapter) GetFileInfo(relPath string) (*FileInfo, error) {
	info, err := os.Stat(a.abs(relPath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		RelativePath: relPath,
		Size:         info.Size(),
		LastWriteUtc: info.ModTime().UTC(),
		IsDir:        info.IsDir(),
	}, nil
}

// HashFile computes the SHA-256 content hash of a local file.
func (a *OSAdapter) HashFile(relPath string) (hash string, err error) {
	f, err := os.Open(a.abs(relPath))
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyWithContext copies while honoring cancellation between 1 MiB segments.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := dst.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
