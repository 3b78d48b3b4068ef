package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/moltender/pkg/model"
)

// Memory keeps the session in process memory only
type Memory struct {
	mu  sync.Mutex
	rec *record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.session(), nil
}

func (m *Memory) Save(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = newRecord(session)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}
