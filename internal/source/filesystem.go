package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// Archive entries are addressed as zip:<archive path>::<entry path>
const (
	ArchivePrefix    = "zip:"
	ArchiveSeparator = "::"

	DefaultMaxFileSize int64 = 500 * 1024 * 1024
)

var (
	ErrFileTooLarge = errors.New("file exceeds size limit")
	ErrNotFound     = errors.New("source not found")
	ErrInvalidID    = errors.New("invalid source id")
)

// DefaultExtensions are the image types the viewer will try to decode
var DefaultExtensions = map[string]bool{
	".bmp":  true,
	".gif":  true,
	".jpg":  true,
	".jpeg": true,
	".jfif": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
	".avif": true,
	".heic": true,
	".heif": true,
}

// Filesystem reads plain files and zip archive entries behind a single id space
type Filesystem struct {
	maxFileSize int64
	logger      *zap.Logger
}

func New(maxFileSize int64, logger *zap.Logger) *Filesystem {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filesystem{
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// ArchiveID builds the id of an entry inside a zip archive
func ArchiveID(archive, entry string) string {
	return ArchivePrefix + archive + ArchiveSeparator + entry
}

// IsVirtual reports whether id addresses an archive entry
func IsVirtual(id string) bool {
	return strings.HasPrefix(id, ArchivePrefix)
}

// SplitArchiveID returns the archive path and the normalized entry path
func SplitArchiveID(id string) (string, string, bool) {
	if !IsVirtual(id) {
		return "", "", false
	}
	archive, entry, ok := strings.Cut(strings.TrimPrefix(id, ArchivePrefix), ArchiveSeparator)
	if !ok || archive == "" || entry == "" {
		return "", "", false
	}
	return archive, normalizeEntry(entry), true
}

// IsArchive reports whether a plain path looks like a supported archive
func IsArchive(p string) bool {
	return strings.ToLower(filepath.Ext(p)) == ".zip"
}

func normalizeEntry(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func hasExtension(name string, extensions map[string]bool) bool {
	return extensions[strings.ToLower(path.Ext(name))]
}

func (f *Filesystem) ReadBytes(id string) ([]byte, error) {
	if IsVirtual(id) {
		return f.readArchiveEntry(id)
	}

	file, err := os.Open(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to open %s: %w", id, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", id, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidID, id)
	}
	if info.Size() > f.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, id, info.Size(), f.maxFileSize)
	}

	return f.readLimited(file, id)
}

func (f *Filesystem) readArchiveEntry(id string) ([]byte, error) {
	archive, entry, ok := SplitArchiveID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: archive %s", ErrNotFound, archive)
		}
		return nil, fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer zr.Close()

	zf := findEntry(zr.File, entry)
	if zf == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if zf.UncompressedSize64 > uint64(f.maxFileSize) {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, id, zf.UncompressedSize64, f.maxFileSize)
	}

	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", id, err)
	}
	defer rc.Close()

	return f.readLimited(rc, id)
}

// readLimited never reads past the ceiling even if the size metadata lied
func (f *Filesystem) readLimited(r io.Reader, id string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}
	if int64(len(data)) > f.maxFileSize {
		return nil, fmt.Errorf("%w: %s (limit %d)", ErrFileTooLarge, id, f.maxFileSize)
	}
	return data, nil
}

func findEntry(files []*zip.File, entry string) *zip.File {
	for _, zf := range files {
		if normalizeEntry(zf.Name) == entry {
			return zf
		}
	}
	return nil
}

// ListSiblings returns the images in the same folder (or archive folder) as
// id, ordered by less. A nil less sorts case-insensitively.
func (f *Filesystem) ListSiblings(id string, extensions map[string]bool, less func(a, b string) bool) ([]string, error) {
	var siblings []string

	if IsVirtual(id) {
		archive, entry, ok := SplitArchiveID(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidID, id)
		}
		names, err := f.archiveNames(archive, extensions)
		if err != nil {
			return nil, err
		}
		dir := path.Dir(entry)
		for _, name := range names {
			if path.Dir(name) == dir {
				siblings = append(siblings, ArchiveID(archive, name))
			}
		}
	} else {
		parent := filepath.Dir(id)
		entries, err := os.ReadDir(parent)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", parent, err)
		}
		for _, e := range entries {
			if e.IsDir() || !hasExtension(e.Name(), extensions) {
				continue
			}
			siblings = append(siblings, filepath.Join(parent, e.Name()))
		}
	}

	sortIDs(siblings, less)
	return siblings, nil
}

// ListArchive returns the ids of every image entry inside a zip archive
func (f *Filesystem) ListArchive(archive string, extensions map[string]bool, less func(a, b string) bool) ([]string, error) {
	names, err := f.archiveNames(archive, extensions)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		ids = append(ids, ArchiveID(archive, name))
	}
	sortIDs(ids, less)
	return ids, nil
}

func (f *Filesystem) archiveNames(archive string, extensions map[string]bool) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		name := normalizeEntry(zf.Name)
		if strings.HasSuffix(name, "/") || !hasExtension(name, extensions) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func sortIDs(ids []string, less func(a, b string) bool) {
	if less == nil {
		less = func(a, b string) bool { return strings.ToLower(a) < strings.ToLower(b) }
	}
	sort.SliceStable(ids, func(i, j int) bool { return less(ids[i], ids[j]) })
}

// GetParent returns the containing folder id. Top-level archive entries
// belong to the archive itself.
func (f *Filesystem) GetParent(id string) string {
	if archive, entry, ok := SplitArchiveID(id); ok {
		dir := path.Dir(entry)
		if dir == "." {
			return archive
		}
		return ArchiveID(archive, dir)
	}
	return filepath.Dir(id)
}

func (f *Filesystem) GetName(id string) string {
	if _, entry, ok := SplitArchiveID(id); ok {
		return path.Base(entry)
	}
	return filepath.Base(id)
}

// GetSize returns the uncompressed size in bytes, or 0 when unknown
func (f *Filesystem) GetSize(id string) int64 {
	if archive, entry, ok := SplitArchiveID(id); ok {
		zr, err := zip.OpenReader(archive)
		if err != nil {
			return 0
		}
		defer zr.Close()

		if zf := findEntry(zr.File, entry); zf != nil {
			return int64(zf.UncompressedSize64)
		}
		return 0
	}

	info, err := os.Stat(id)
	if err != nil {
		f.logger.Debug("Failed to stat source", zap.String("source_id", id), zap.Error(err))
		return 0
	}
	return info.Size()
}
