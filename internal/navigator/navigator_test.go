package navigator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// folderLister serves siblings from the library itself, grouped by path.Dir
type folderLister struct {
	files []string
	calls int
}

func (l *folderLister) ListSiblings(id string, _ map[string]bool, less func(a, b string) bool) ([]string, error) {
	var out []string
	for _, f := range l.files {
		if path.Dir(f) == path.Dir(id) {
			out = append(out, f)
		}
	}
	l.calls++
	if len(out) == 0 {
		return nil, errors.New("no such folder")
	}
	return out, nil
}

func (l *folderLister) GetParent(id string) string {
	return path.Dir(id)
}

var library = []string{
	"/lib/a/1.jpg", "/lib/a/2.jpg", "/lib/a/10.jpg",
	"/lib/b/x.png", "/lib/b/y.png",
	"/lib/c/only.gif",
}

var folders = []string{"/lib/a", "/lib/b", "/lib/c"}

func newTestNavigator(t *testing.T, mode Mode, files []string) *Navigator {
	n := New(&folderLister{files: files}, nil, mode, zaptest.NewLogger(t))
	n.rnd = rand.New(rand.NewPCG(1, 2))
	n.SetFiles(files, folders)
	return n
}

func TestNavigator_SequentialWraps(t *testing.T) {
	n := newTestNavigator(t, ModeSequential, library)

	var got []string
	for i := 0; i < len(library)+1; i++ {
		id, ok := n.Next()
		require.True(t, ok)
		got = append(got, id)
	}

	assert.Equal(t, append(append([]string(nil), library...), library[0]), got)
}

func TestNavigator_PrevAndForwardThroughHistory(t *testing.T) {
	n := newTestNavigator(t, ModeSequential, library)

	first, _ := n.Next()
	second, _ := n.Next()
	third, _ := n.Next()

	id, ok := n.Prev()
	require.True(t, ok)
	assert.Equal(t, second, id)
	id, _ = n.Prev()
	assert.Equal(t, first, id)
	_, ok = n.Prev()
	assert.False(t, ok, "no history before the first image")

	predicted, ok := n.PredictNext()
	require.True(t, ok)
	assert.Equal(t, second, predicted)

	id, _ = n.Next()
	assert.Equal(t, second, id)
	id, _ = n.Next()
	assert.Equal(t, third, id)
	assert.Equal(t, third, n.Current())
}

func TestNavigator_PredictNextMatchesRandomNext(t *testing.T) {
	n := newTestNavigator(t, ModeRandom, library)

	for i := 0; i < 20; i++ {
		predicted, ok := n.PredictNext()
		require.True(t, ok)

		again, _ := n.PredictNext()
		assert.Equal(t, predicted, again, "prediction must be stable until Next")

		id, ok := n.Next()
		require.True(t, ok)
		assert.Equal(t, predicted, id)
	}
}

func TestNavigator_RandomAvoidsRecentImages(t *testing.T) {
	files := make([]string, 50)
	for i := range files {
		files[i] = fmt.Sprintf("/lib/a/%d.jpg", i)
	}
	n := newTestNavigator(t, ModeRandom, files)

	// History is trimmed to 80% of a small library
	limit := int(float64(len(files)) * historyShrink)
	seen := map[string]bool{}
	for i := 0; i < limit; i++ {
		id, ok := n.Next()
		require.True(t, ok)
		assert.False(t, seen[id], "random pick repeated %s within the history window", id)
		seen[id] = true
	}

	pointer, length := n.History()
	assert.Equal(t, limit, length)
	assert.Equal(t, limit-1, pointer)
}

func TestNavigator_HistoryBounded(t *testing.T) {
	n := newTestNavigator(t, ModeSequential, library)

	for i := 0; i < 50; i++ {
		n.Next()
	}

	pointer, length := n.History()
	assert.Equal(t, int(float64(len(library))*historyShrink), length)
	assert.Equal(t, length-1, pointer)
	assert.Equal(t, n.Current(), n.history[pointer])
}

func TestNavigator_EmptyLibrary(t *testing.T) {
	n := newTestNavigator(t, ModeRandom, nil)

	_, ok := n.Next()
	assert.False(t, ok)
	_, ok = n.PredictNext()
	assert.False(t, ok)
	_, ok = n.Sibling(1)
	assert.False(t, ok)
	_, ok = n.Folder(1)
	assert.False(t, ok)
}

func TestNavigator_SiblingAndFirst(t *testing.T) {
	n := newTestNavigator(t, ModeRandom, library)
	n.Show("/lib/a/2.jpg")

	id, ok := n.Sibling(1)
	require.True(t, ok)
	assert.Equal(t, "/lib/a/10.jpg", id)

	id, _ = n.Sibling(1)
	assert.Equal(t, "/lib/a/1.jpg", id, "sibling navigation wraps around")

	id, _ = n.Sibling(-1)
	assert.Equal(t, "/lib/a/10.jpg", id)

	id, ok = n.First()
	require.True(t, ok)
	assert.Equal(t, "/lib/a/1.jpg", id)

	pointer, _ := n.History()
	assert.Equal(t, "/lib/a/1.jpg", n.history[pointer])
	assert.Equal(t, "/lib/a/10.jpg", n.history[pointer-1])
}

func TestNavigator_Folder(t *testing.T) {
	n := newTestNavigator(t, ModeSequential, library)
	n.Show("/lib/a/2.jpg")

	id, ok := n.Folder(1)
	require.True(t, ok)
	assert.Equal(t, "/lib/b/x.png", id)

	id, _ = n.Folder(-2)
	assert.Equal(t, "/lib/c/only.gif", id)

	require.Equal(t, ModeRandom, n.ToggleMode())
	id, _ = n.Folder(-2)
	assert.Equal(t, "/lib/a", path.Dir(id))
}

func TestNavigator_Adjacent(t *testing.T) {
	n := newTestNavigator(t, ModeRandom, library)

	id, ok := n.Adjacent("/lib/a/10.jpg")
	require.True(t, ok)
	assert.Equal(t, "/lib/a/1.jpg", id)

	id, ok = n.Adjacent("/lib/c/only.gif")
	require.True(t, ok)
	assert.Equal(t, "/lib/c/only.gif", id)

	_, ok = n.Adjacent("/elsewhere/z.jpg")
	assert.False(t, ok)
}

func TestNavigator_SiblingListingsCachedPerFolder(t *testing.T) {
	lister := &folderLister{files: library}
	n := New(lister, nil, ModeRandom, zaptest.NewLogger(t))
	n.SetFiles(library, folders)

	for i := 0; i < 5; i++ {
		_, ok := n.Adjacent("/lib/a/1.jpg")
		require.True(t, ok)
	}
	n.Adjacent("/lib/a/2.jpg")
	assert.Equal(t, 1, lister.calls)

	n.Adjacent("/lib/b/x.png")
	assert.Equal(t, 2, lister.calls)

	// A failed listing is retried
	n.Adjacent("/elsewhere/z.jpg")
	n.Adjacent("/elsewhere/z.jpg")
	assert.Equal(t, 4, lister.calls)

	lister.files = append(lister.files, "/lib/a/3.jpg")
	n.SetFiles(lister.files, folders)
	id, ok := n.Adjacent("/lib/a/2.jpg")
	require.True(t, ok)
	assert.Equal(t, "/lib/a/10.jpg", id)
	assert.Equal(t, 5, lister.calls)
}

func TestNavigator_ToggleMode(t *testing.T) {
	n := newTestNavigator(t, ModeRandom, library)

	n.PredictNext()
	assert.Equal(t, ModeSequential, n.ToggleMode())
	assert.Empty(t, n.pending, "switching mode drops the pre-rolled pick")
	assert.Equal(t, ModeRandom, n.ToggleMode())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("sequential")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m)

	m, err = ParseMode("rnd")
	require.NoError(t, err)
	assert.Equal(t, ModeRandom, m)

	_, err = ParseMode("shuffle")
	assert.Error(t, err)
	assert.Equal(t, "sequential", ModeSequential.String())
}
