package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/anantham/tarotgallery/models"
)

// MemoryGalleryRegistry keeps the index in process memory. Used in dev
// mode and in tests; production deployments use the Redis registry.
type MemoryGalleryRegistry struct {
	mu      sync.RWMutex
	entries map[string]models.GalleryEntry
	index   []string // locators, insertion order
}

func NewMemoryGalleryRegistry() *MemoryGalleryRegistry {
	return &MemoryGalleryRegistry{
		entries: make(map[string]models.GalleryEntry),
	}
}

func (m *MemoryGalleryRegistry) Add(ctx context.Context, entry models.GalleryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.Locator]; !exists {
		m.index = append(m.index, entry.Locator)
	}
	m.entries[entry.Locator] = entry
	return nil
}

func (m *MemoryGalleryRegistry) List(ctx context.Context, offset, limit int) ([]models.GalleryEntry, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ordered := make([]models.GalleryEntry, 0, len(m.index))
	for _, locator := range m.index {
		ordered = append(ordered, m.entries[locator])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp > ordered[j].Timestamp
	})

	total := int64(len(ordered))
	if offset >= len(ordered) {
		return []models.GalleryEntry{}, total, nil
	}
	end := offset + limit
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[offset:end], total, nil
}

func (m *MemoryGalleryRegistry) Get(ctx context.Context, locator string) (models.GalleryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[locator]
	if !ok {
		return models.GalleryEntry{}, ErrNotFound
	}
	return entry, nil
}
