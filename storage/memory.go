package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/obscura-mint/interfaces"
)

// MemoryBackend keeps content in process memory. Content does not survive a
// restart, so it suits tests and ephemeral nodes only.
type MemoryBackend struct {
	mu      sync.RWMutex
	name    string
	content map[interfaces.ContentType]map[interfaces.ContentID][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(name string) *MemoryBackend {
	if name == "" {
		name = "default"
	}
	return &MemoryBackend{
		name:    name,
		content: make(map[interfaces.ContentType]map[interfaces.ContentID][]byte),
	}
}

func (b *MemoryBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.content[contentType][id]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	byID, ok := b.content[contentType]
	if !ok {
		byID = make(map[interfaces.ContentID][]byte)
		b.content[contentType] = byID
	}
	byID[id] = append([]byte(nil), data...)
	return id, nil
}

func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

func (b *MemoryBackend) Name() string {
	return fmt.Sprintf("memory-%s", b.name)
}

func (b *MemoryBackend) LocationURI() string {
	return fmt.Sprintf("memory://%s", b.name)
}
