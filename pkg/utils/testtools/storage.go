package testtools

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/adapter"
)

// Storage is an in-memory object store
type Storage struct {
	mu      sync.Mutex
	objects map[string][]byte
	PutErr  error
}

var _ adapter.Storage = (*Storage)(nil)

type storageWriter struct {
	bytes.Buffer
	key     string
	storage *Storage
}

func (w *storageWriter) Close() error {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	if w.storage.objects == nil {
		w.storage.objects = map[string][]byte{}
	}
	w.storage.objects[w.key] = bytes.Clone(w.Bytes())
	return nil
}

func (s *Storage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	return &storageWriter{key: key, storage: s}, nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, goerr.New("object not found", goerr.V("key", key))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Keys returns the keys of every stored object
func (s *Storage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	return keys
}
