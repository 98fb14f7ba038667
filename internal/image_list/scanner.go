package image_list

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"slideshow/internal/source"
)

type ImageInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

// ArchiveSource lists archive contents and resolves display names
type ArchiveSource interface {
	ListArchive(archive string, extensions map[string]bool, less func(a, b string) bool) ([]string, error)
	GetName(id string) string
	GetParent(id string) string
}

// Scanner builds the library: every image under root in natural order,
// folders before their subfolders, archive entries in place of the archive.
type Scanner struct {
	root       string
	source     ArchiveSource
	extensions map[string]bool
	archives   bool
	logger     *zap.Logger

	mu      sync.RWMutex
	images  []ImageInfo
	index   map[string]int
	folders []string
}

func New(root string, src ArchiveSource, archives bool, logger *zap.Logger) *Scanner {
	return &Scanner{
		root:       root,
		source:     src,
		extensions: source.DefaultExtensions,
		archives:   archives,
		logger:     logger,
		index:      map[string]int{},
	}
}

func (s *Scanner) Scan() error {
	if _, err := os.ReadDir(s.root); err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	var images []ImageInfo
	s.walk(s.root, &images)

	index := make(map[string]int, len(images))
	folderSet := map[string]bool{}
	for i, img := range images {
		index[img.ID] = i
		folderSet[img.Folder] = true
	}
	folders := make([]string, 0, len(folderSet))
	for f := range folderSet {
		folders = append(folders, f)
	}
	sort.Slice(folders, func(i, j int) bool { return source.NaturalLess(folders[i], folders[j]) })

	s.mu.Lock()
	s.images = images
	s.index = index
	s.folders = folders
	s.mu.Unlock()

	s.logger.Info("Library scanned",
		zap.String("root", s.root),
		zap.Int("images", len(images)),
		zap.Int("folders", len(folders)),
	)
	return nil
}

func (s *Scanner) walk(dir string, images *[]ImageInfo) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("Error reading directory", zap.String("path", dir), zap.Error(err))
		return
	}
	sort.Slice(entries, func(i, j int) bool { return source.NaturalLess(entries[i].Name(), entries[j].Name()) })

	var subdirs []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}

		switch {
		case s.extensions[extOf(entry.Name())]:
			*images = append(*images, s.info(path))
		case s.archives && source.IsArchive(path):
			ids, err := s.source.ListArchive(path, s.extensions, source.NaturalLess)
			if err != nil {
				s.logger.Warn("Skipping unreadable archive", zap.String("path", path), zap.Error(err))
				continue
			}
			for _, id := range ids {
				*images = append(*images, s.info(id))
			}
		}
	}

	for _, sub := range subdirs {
		s.walk(sub, images)
	}
}

func (s *Scanner) info(id string) ImageInfo {
	return ImageInfo{
		ID:     id,
		Name:   s.source.GetName(id),
		Folder: s.source.GetParent(id),
	}
}

func extOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func (s *Scanner) GetImages() []ImageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ImageInfo(nil), s.images...)
}

// IDs returns the library order as source ids
func (s *Scanner) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.images))
	for i, img := range s.images {
		ids[i] = img.ID
	}
	return ids
}

func (s *Scanner) GetImageByID(id string) *ImageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return nil
	}
	img := s.images[i]
	return &img
}

// Folders returns every folder holding at least one image, in natural order
func (s *Scanner) Folders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.folders...)
}

func (s *Scanner) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.images)
}
