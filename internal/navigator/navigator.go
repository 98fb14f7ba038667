// Package navigator decides which image comes next: sequential or random
// order over the library, a bounded back/forward history, and folder-local
// moves between siblings.
package navigator

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"slideshow/internal/source"
)

const (
	// DefaultHistorySize bounds the back/forward history
	DefaultHistorySize = 500
	// randomAttempts is how often a random pick retries to avoid recent images
	randomAttempts = 500
	// historyShrink sizes the history for small libraries so repeats stay possible
	historyShrink = 0.8
)

type Mode int

const (
	ModeRandom Mode = iota
	ModeSequential
)

func (m Mode) String() string {
	if m == ModeSequential {
		return "sequential"
	}
	return "random"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "random", "rnd":
		return ModeRandom, nil
	case "sequential", "seq":
		return ModeSequential, nil
	default:
		return ModeRandom, fmt.Errorf("unknown slide mode: %s (supported: random, sequential)", s)
	}
}

// SiblingLister lists the images sharing a folder with an id
type SiblingLister interface {
	ListSiblings(id string, extensions map[string]bool, less func(a, b string) bool) ([]string, error)
	GetParent(id string) string
}

type Navigator struct {
	siblings   SiblingLister
	extensions map[string]bool
	logger     *zap.Logger

	mu           sync.Mutex
	rnd          *rand.Rand
	mode         Mode
	files        []string
	index        map[string]int
	folders      []string
	history      []string
	historyLimit int
	pointer      int
	current      string
	pending      string

	// Sibling listings per folder, dropped on SetFiles
	siblingMu    sync.Mutex
	siblingCache map[string][]string
}

func New(siblings SiblingLister, extensions map[string]bool, mode Mode, logger *zap.Logger) *Navigator {
	if extensions == nil {
		extensions = source.DefaultExtensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := uint64(time.Now().UnixNano())
	return &Navigator{
		siblings:     siblings,
		extensions:   extensions,
		logger:       logger,
		rnd:          rand.New(rand.NewPCG(seed, seed>>32)),
		mode:         mode,
		index:        map[string]int{},
		siblingCache: map[string][]string{},
		historyLimit: DefaultHistorySize,
		pointer:      -1,
	}
}

// SetFiles replaces the library. files must already be in library order.
func (n *Navigator) SetFiles(files, folders []string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.files = append([]string(nil), files...)
	n.folders = append([]string(nil), folders...)
	n.index = make(map[string]int, len(files))
	for i, id := range n.files {
		n.index[id] = i
	}

	n.historyLimit = DefaultHistorySize
	if total := len(n.files); total > 0 && total < DefaultHistorySize {
		n.historyLimit = max(1, int(float64(total)*historyShrink))
	}
	n.trimHistory()

	if _, ok := n.index[n.pending]; !ok {
		n.pending = ""
	}

	n.siblingMu.Lock()
	n.siblingCache = map[string][]string{}
	n.siblingMu.Unlock()

	n.logger.Info("Library updated",
		zap.Int("images", len(n.files)),
		zap.Int("folders", len(n.folders)),
		zap.Int("history_limit", n.historyLimit),
	)
}

func (n *Navigator) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.files)
}

func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.current
}

func (n *Navigator) Mode() Mode {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.mode
}

// ToggleMode switches between random and sequential and returns the new mode
func (n *Navigator) ToggleMode() Mode {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode == ModeRandom {
		n.mode = ModeSequential
	} else {
		n.mode = ModeRandom
	}
	n.pending = ""
	return n.mode
}

// History returns the position of the current entry and the history length
func (n *Navigator) History() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.pointer, len(n.history)
}

// Next moves forward through the history, or picks a new image once at its end
func (n *Navigator) Next() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pointer < len(n.history)-1 {
		n.pointer++
		n.current = n.history[n.pointer]
		return n.current, true
	}

	id, ok := n.pick()
	if !ok {
		return "", false
	}
	n.visit(id)
	return id, true
}

// PredictNext returns what Next will return without moving. In random mode
// the choice is rolled now and kept, so the prediction holds.
func (n *Navigator) PredictNext() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pointer < len(n.history)-1 {
		return n.history[n.pointer+1], true
	}
	return n.pick()
}

func (n *Navigator) Prev() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pointer <= 0 {
		return "", false
	}
	n.pointer--
	n.current = n.history[n.pointer]
	return n.current, true
}

// Show jumps to id and records it in the history
func (n *Navigator) Show(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.visit(id)
}

// Sibling moves offset images within the current folder, wrapping around
func (n *Navigator) Sibling(offset int) (string, bool) {
	current := n.Current()
	if current == "" {
		return "", false
	}
	siblings := n.listSiblings(current)
	i := indexOf(siblings, current)
	if i < 0 {
		return "", false
	}
	id := siblings[wrap(i+offset, len(siblings))]

	n.mu.Lock()
	defer n.mu.Unlock()
	n.visit(id)
	return id, true
}

// First moves to the first image of the current folder
func (n *Navigator) First() (string, bool) {
	current := n.Current()
	if current == "" {
		return "", false
	}
	siblings := n.listSiblings(current)
	if len(siblings) == 0 {
		return "", false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.visit(siblings[0])
	return siblings[0], true
}

// Folder moves offset folders through the library. Sequential mode opens
// the first image of the folder, random mode a random one.
func (n *Navigator) Folder(offset int) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.current == "" || len(n.folders) == 0 {
		return "", false
	}
	i := indexOf(n.folders, n.siblings.GetParent(n.current))
	if i < 0 {
		return "", false
	}
	target := n.folders[wrap(i+offset, len(n.folders))]

	var inFolder []string
	for _, id := range n.files {
		if n.siblings.GetParent(id) == target {
			inFolder = append(inFolder, id)
		}
	}
	if len(inFolder) == 0 {
		return "", false
	}

	id := inFolder[0]
	if n.mode == ModeRandom {
		id = inFolder[n.rnd.IntN(len(inFolder))]
	}
	n.visit(id)
	return id, true
}

// Adjacent returns the image after id in its folder
func (n *Navigator) Adjacent(id string) (string, bool) {
	siblings := n.listSiblings(id)
	i := indexOf(siblings, id)
	if i < 0 {
		return "", false
	}
	return siblings[wrap(i+1, len(siblings))], true
}

// listSiblings lists the folder of id at most once per library update
func (n *Navigator) listSiblings(id string) []string {
	folder := n.siblings.GetParent(id)

	n.siblingMu.Lock()
	defer n.siblingMu.Unlock()

	if siblings, ok := n.siblingCache[folder]; ok {
		return siblings
	}

	siblings, err := n.siblings.ListSiblings(id, n.extensions, source.NaturalLess)
	if err != nil {
		n.logger.Debug("Failed to list siblings", zap.String("source_id", id), zap.Error(err))
		return nil
	}
	n.siblingCache[folder] = siblings
	return siblings
}

// pick chooses a new image. Callers hold n.mu.
func (n *Navigator) pick() (string, bool) {
	if len(n.files) == 0 {
		return "", false
	}

	if n.mode == ModeSequential {
		i, ok := n.index[n.current]
		if !ok {
			i = -1
		}
		return n.files[(i+1)%len(n.files)], true
	}

	if n.pending != "" {
		return n.pending, true
	}

	seen := make(map[string]bool, len(n.history))
	for _, id := range n.history {
		seen[id] = true
	}
	n.pending = n.files[n.rnd.IntN(len(n.files))]
	for i := 0; i < randomAttempts && seen[n.pending]; i++ {
		n.pending = n.files[n.rnd.IntN(len(n.files))]
	}
	return n.pending, true
}

// visit makes id current and appends it to the history. Callers hold n.mu.
func (n *Navigator) visit(id string) {
	n.current = id
	n.pending = ""
	if len(n.history) == 0 || n.history[len(n.history)-1] != id {
		n.history = append(n.history, id)
	}
	n.trimHistory()
	n.pointer = len(n.history) - 1
}

func (n *Navigator) trimHistory() {
	if extra := len(n.history) - n.historyLimit; extra > 0 {
		n.history = append([]string(nil), n.history[extra:]...)
		n.pointer = max(n.pointer-extra, min(0, len(n.history)-1))
	}
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}
