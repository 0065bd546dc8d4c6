// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rovshanmuradov/sonic-defi/internal/storage"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/models"
)

// Storage хранит журнал в памяти процесса. Используется, когда postgres_url
// не задан.
type Storage struct {
	mu        sync.RWMutex
	nextID    uint
	activity  map[string]*models.Activity
	snapshots map[string][]*models.PoolSnapshot
	now       func() time.Time
}

var _ storage.Storage = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		activity:  make(map[string]*models.Activity),
		snapshots: make(map[string][]*models.PoolSnapshot),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Storage) stamp(m *models.BaseModel) {
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = s.now()
	m.UpdatedAt = m.CreatedAt
}

func (s *Storage) SaveActivity(_ context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activity[a.Hash]; ok {
		return fmt.Errorf("activity %s already exists", a.Hash)
	}
	s.stamp(&a.BaseModel)
	cp := *a
	s.activity[a.Hash] = &cp
	return nil
}

func (s *Storage) GetActivity(_ context.Context, hash string) (*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activity[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListActivity returns the newest records first.
func (s *Storage) ListActivity(_ context.Context, wallet string, limit, offset int) ([]*models.Activity, error) {
	s.mu.RLock()
	var list []*models.Activity
	for _, a := range s.activity {
		if strings.EqualFold(a.Wallet, wallet) {
			cp := *a
			list = append(list, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (s *Storage) UpdateActivityStatus(_ context.Context, hash, status, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activity[hash]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = status
	a.Error = errorMsg
	a.UpdatedAt = s.now()
	return nil
}

func (s *Storage) SavePoolSnapshot(_ context.Context, snap *models.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&snap.BaseModel)
	cp := *snap
	s.snapshots[snap.PoolAddress] = append(s.snapshots[snap.PoolAddress], &cp)
	return nil
}

func (s *Storage) LatestPoolSnapshot(_ context.Context, poolAddress string) (*models.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.snapshots[poolAddress]
	if len(list) == 0 {
		return nil, storage.ErrNotFound
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (s *Storage) RunMigrations() error { return nil }

func (s *Storage) Close() error { return nil }
