package source

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, p string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0644))
}

func writeZip(t *testing.T, p string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entries[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestFilesystem_ReadPlainFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")
	writeFile(t, p, "pixels")

	fsys := New(0, zaptest.NewLogger(t))
	data, err := fsys.ReadBytes(p)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, int64(6), fsys.GetSize(p))
	assert.Equal(t, "a.jpg", fsys.GetName(p))
	assert.Equal(t, dir, fsys.GetParent(p))
}

func TestFilesystem_ReadErrors(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.png")
	writeFile(t, big, "0123456789")

	fsys := New(4, zaptest.NewLogger(t))

	_, err := fsys.ReadBytes(big)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = fsys.ReadBytes(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fsys.ReadBytes(dir)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = fsys.ReadBytes("zip:" + filepath.Join(dir, "nope.zip"))
	assert.ErrorIs(t, err, ErrInvalidID)

	assert.Zero(t, fsys.GetSize(filepath.Join(dir, "missing.png")))
}

func TestFilesystem_ArchiveEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "album.zip")
	writeZip(t, archive, map[string]string{
		"cover.jpg":        "cover",
		"pages/page10.jpg": "ten",
		"pages/page2.jpg":  "two",
		"pages/notes.txt":  "skip",
		"pages/big.png":    "0123456789",
	})

	fsys := New(8, zaptest.NewLogger(t))

	id := ArchiveID(archive, "pages/page2.jpg")
	data, err := fsys.ReadBytes(id)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	_, err = fsys.ReadBytes(ArchiveID(archive, "pages/big.png"))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = fsys.ReadBytes(ArchiveID(archive, "pages/missing.jpg"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fsys.ReadBytes(ArchiveID(filepath.Join(dir, "missing.zip"), "a.jpg"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, "page2.jpg", fsys.GetName(id))
	assert.Equal(t, ArchiveID(archive, "pages"), fsys.GetParent(id))
	assert.Equal(t, archive, fsys.GetParent(ArchiveID(archive, "cover.jpg")))
	assert.Equal(t, int64(3), fsys.GetSize(id))

	siblings, err := fsys.ListSiblings(id, DefaultExtensions, NaturalLess)
	require.NoError(t, err)
	assert.Equal(t, []string{
		ArchiveID(archive, "pages/big.png"),
		ArchiveID(archive, "pages/page2.jpg"),
		ArchiveID(archive, "pages/page10.jpg"),
	}, siblings)

	all, err := fsys.ListArchive(archive, DefaultExtensions, NaturalLess)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, ArchiveID(archive, "cover.jpg"), all[0])
}

func TestFilesystem_ListSiblingsPlain(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"img10.jpg", "img2.PNG", "img1.jpg", "readme.md"} {
		writeFile(t, filepath.Join(dir, name), name)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0755))

	fsys := New(0, zaptest.NewLogger(t))
	siblings, err := fsys.ListSiblings(filepath.Join(dir, "img2.PNG"), DefaultExtensions, NaturalLess)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "img1.jpg"),
		filepath.Join(dir, "img2.PNG"),
		filepath.Join(dir, "img10.jpg"),
	}, siblings)

	lexical, err := fsys.ListSiblings(filepath.Join(dir, "img2.PNG"), DefaultExtensions, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "img10.jpg"), lexical[1])
}

func TestSplitArchiveID(t *testing.T) {
	archive, entry, ok := SplitArchiveID(`zip:/tmp/a.zip::dir\x.jpg`)
	require.True(t, ok)
	assert.Equal(t, "/tmp/a.zip", archive)
	assert.Equal(t, "dir/x.jpg", entry)

	_, _, ok = SplitArchiveID("/tmp/a.jpg")
	assert.False(t, ok)
	_, _, ok = SplitArchiveID("zip:/tmp/a.zip")
	assert.False(t, ok)

	assert.True(t, IsArchive("/x/Album.ZIP"))
	assert.False(t, IsArchive("/x/a.jpg"))
}
