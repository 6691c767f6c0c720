package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Memory is an in-process Store for local development and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	base    string
}

func NewMemory(publicBase string) *Memory {
	if publicBase == "" {
		publicBase = "memory://objects"
	}
	return &Memory{objects: map[string][]byte{}, base: strings.TrimRight(publicBase, "/")}
}

func memKey(category Category, key string) string {
	return string(category) + "/" + strings.TrimLeft(key, "/")
}

func (m *Memory) Put(_ context.Context, category Category, key string, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[memKey(category, key)] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, category Category, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	b, ok := m.objects[memKey(category, key)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *Memory) Delete(_ context.Context, category Category, key string) error {
	m.mu.Lock()
	delete(m.objects, memKey(category, key))
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, category Category, prefix string) error {
	p := memKey(category, prefix)
	m.mu.Lock()
	for k := range m.objects {
		if strings.HasPrefix(k, p) {
			delete(m.objects, k)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) PublicURL(category Category, key string) string {
	return fmt.Sprintf("%s/%s", m.base, memKey(category, key))
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
