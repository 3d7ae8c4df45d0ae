package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/models"
)

// MemoryScripts is an in-memory ScriptRepository.
type MemoryScripts struct {
	mu      sync.Mutex
	scripts map[uuid.UUID]models.Script
}

var _ ScriptRepository = (*MemoryScripts)(nil)

func NewMemoryScripts() *MemoryScripts {
	return &MemoryScripts{scripts: make(map[uuid.UUID]models.Script)}
}

func (r *MemoryScripts) Create(_ context.Context, script *models.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *script
	s.Keywords = append([]string(nil), script.Keywords...)
	r.scripts[script.ID] = s
	return nil
}

func (r *MemoryScripts) Get(_ context.Context, id uuid.UUID) (*models.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scripts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.Keywords = append([]string(nil), s.Keywords...)
	return &s, nil
}

func (r *MemoryScripts) MarkGenerated(_ context.Context, id uuid.UUID, title, content string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scripts[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if s.Status != models.ScriptPending {
		return false, nil
	}
	s.Title, s.Content, s.Status = title, content, models.ScriptGenerated
	r.scripts[id] = s
	return true, nil
}

func (r *MemoryScripts) MarkFailed(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scripts[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if s.Status != models.ScriptPending {
		return false, nil
	}
	s.Status = models.ScriptFailed
	r.scripts[id] = s
	return true, nil
}

func (r *MemoryScripts) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*models.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Script
	for _, s := range r.scripts {
		if s.UserID == userID {
			c := s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *MemoryScripts) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scripts[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.scripts, id)
	return nil
}

// MemoryVideos is an in-memory VideoRepository. Update holds the repository lock, which
// gives the same all-or-nothing semantics as the row lock in Postgres.
type MemoryVideos struct {
	mu     sync.Mutex
	videos map[uuid.UUID]models.Video
}

var _ VideoRepository = (*MemoryVideos)(nil)

func NewMemoryVideos() *MemoryVideos {
	return &MemoryVideos{videos: make(map[uuid.UUID]models.Video)}
}

func (r *MemoryVideos) Create(_ context.Context, video *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos[video.ID] = *video
	return nil
}

func (r *MemoryVideos) Get(_ context.Context, id uuid.UUID) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &v, nil
}

func (r *MemoryVideos) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Video
	for _, v := range r.videos {
		if v.UserID == userID {
			c := v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *MemoryVideos) Update(_ context.Context, id uuid.UUID, fn VideoMutator) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	working := v
	if err := fn(&working); err != nil {
		if errors.Is(err, ErrNoChange) {
			return &v, nil
		}
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	r.videos[id] = working
	return &working, nil
}

func (r *MemoryVideos) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.videos, id)
	return nil
}

func (r *MemoryVideos) DeleteByScript(_ context.Context, scriptID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, v := range r.videos {
		if v.ScriptID == scriptID {
			delete(r.videos, id)
			n++
		}
	}
	return n, nil
}

// MemoryAccounts is an in-memory PlatformAccountRepository and SubscriptionRepository.
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.PlatformAccount
	subs     map[uuid.UUID]models.Subscription
}

var _ PlatformAccountRepository = (*MemoryAccounts)(nil)

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		accounts: make(map[uuid.UUID]models.PlatformAccount),
		subs:     make(map[uuid.UUID]models.Subscription),
	}
}

func (r *MemoryAccounts) Upsert(_ context.Context, account *models.PlatformAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.UserID] = *account
	return nil
}

func (r *MemoryAccounts) Get(_ context.Context, userID uuid.UUID) (*models.PlatformAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

// Subscriptions exposes the subscription half of the store.
func (r *MemoryAccounts) Subscriptions() SubscriptionRepository {
	return memorySubscriptions{r}
}

type memorySubscriptions struct{ r *MemoryAccounts }

func (m memorySubscriptions) Upsert(_ context.Context, sub *models.Subscription) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	m.r.subs[sub.UserID] = *sub
	return nil
}

func (m memorySubscriptions) Get(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	s, ok := m.r.subs[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
