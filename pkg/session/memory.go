package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore はプロセス内のmapにセッションを保持するStore実装。
// 単一プロセスの開発環境およびテストで使用する。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

// NewMemoryStore は新しいMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Create は新しいセッションを保存する。
// 保存のついでに期限切れのエントリを掃除する。
func (m *MemoryStore) Create(_ context.Context, data *Data, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
		}
	}

	id := uuid.New().String()
	m.entries[id] = memoryEntry{data: *data, expiresAt: now.Add(ttl)}
	return id, nil
}

// Get はセッションを取得する。
func (m *MemoryStore) Get(_ context.Context, id string) (*Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, id)
		return nil, nil
	}
	d := e.data
	return &d, nil
}

// Delete はセッションを削除する。
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Touch はセッションの有効期限を延長する。
func (m *MemoryStore) Touch(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.expiresAt = m.now().Add(ttl)
		m.entries[id] = e
	}
	return nil
}

// Ping は常に成功する。
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
