package question

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore serves questions from an in-memory pack loaded from a YAML file.
// It is the development default and the fallback behind the redis store.
type FileStore struct {
	mu         sync.RWMutex
	categories []Category
	byID       map[string]*Question
	// category id -> kind -> question ids
	index map[string]map[Kind][]string
}

type packFile struct {
	Categories []Category `yaml:"categories"`
	Questions  []Question `yaml:"questions"`
}

func LoadFile(path string) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question pack: %w", err)
	}

	var pack packFile
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("parse question pack: %w", err)
	}

	return NewFileStore(pack.Categories, pack.Questions)
}

func NewFileStore(categories []Category, questions []Question) (*FileStore, error) {
	fs := &FileStore{
		categories: categories,
		byID:       make(map[string]*Question, len(questions)),
		index:      make(map[string]map[Kind][]string),
	}

	sort.SliceStable(fs.categories, func(i, j int) bool {
		return fs.categories[i].SortOrder < fs.categories[j].SortOrder
	})

	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			return nil, fmt.Errorf("question without id (text %q)", q.Text)
		}
		if _, dup := fs.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		fs.byID[q.ID] = q

		kinds, ok := fs.index[q.CategoryID]
		if !ok {
			kinds = make(map[Kind][]string)
			fs.index[q.CategoryID] = kinds
		}
		kinds[q.Kind] = append(kinds[q.Kind], q.ID)
	}

	return fs, nil
}

func (fs *FileStore) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.byID)
}

func (fs *FileStore) Categories(_ context.Context) ([]Category, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]Category, 0, len(fs.categories))
	for _, c := range fs.categories {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (fs *FileStore) Random(_ context.Context, categoryID string, kind Kind, n int, exclude map[string]bool) ([]Question, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var pool []string
	if categoryID == "" {
		for _, kinds := range fs.index {
			pool = append(pool, kinds[kind]...)
		}
	} else {
		pool = fs.index[categoryID][kind]
	}

	candidates := make([]string, 0, len(pool))
	for _, id := range pool {
		if !exclude[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrExhausted
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if n > len(candidates) {
		n = len(candidates)
	}

	out := make([]Question, 0, n)
	for _, id := range candidates[:n] {
		out = append(out, *fs.byID[id])
	}
	return out, nil
}

func (fs *FileStore) ByID(_ context.Context, id string) (*Question, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	q, ok := fs.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}
