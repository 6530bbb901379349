package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

type mockClassRepo struct {
	classes []models.GymClass
	calls   int
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.GymClass, error) {
	for _, cls := range m.classes {
		if cls.ID == id {
			return &cls, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.GymClass, int, error) {
	m.calls++
	return m.classes, len(m.classes), nil
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, pattern)
	m.entries = nil
	return nil
}

type mockCacheMetrics struct {
	hits   int
	misses int
}

func (m *mockCacheMetrics) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestClassServiceListCachesPages(t *testing.T) {
	repo := &mockClassRepo{classes: []models.GymClass{{ID: "class-1", Name: "Morning Yoga", MaxMembers: 10}}}
	cache := &mockCache{}
	metrics := &mockCacheMetrics{}
	svc := NewClassService(repo, cache, metrics, time.Minute, nil)

	filter := models.ClassFilter{Page: 1, PageSize: 20}

	classes, pagination, hit, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.False(t, hit)
	require.Len(t, classes, 1)
	require.Equal(t, 1, pagination.TotalCount)
	require.Equal(t, 1, repo.calls)

	classes, _, hit, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, classes, 1)
	require.Equal(t, 1, repo.calls)
	require.Equal(t, 1, metrics.hits)
	require.Equal(t, 1, metrics.misses)
}

func TestClassServiceInvalidateListings(t *testing.T) {
	repo := &mockClassRepo{classes: []models.GymClass{{ID: "class-1"}}}
	cache := &mockCache{}
	svc := NewClassService(repo, cache, nil, time.Minute, nil)

	filter := models.ClassFilter{Page: 1, PageSize: 20}
	_, _, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)

	svc.InvalidateListings(context.Background())
	require.Equal(t, []string{"classes:list:*"}, cache.deleted)

	_, _, hit, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, repo.calls)
}

func TestClassServiceListWithoutCache(t *testing.T) {
	repo := &mockClassRepo{classes: []models.GymClass{{ID: "class-1"}}}
	svc := NewClassService(repo, nil, nil, 0, nil)

	_, _, hit, err := svc.List(context.Background(), models.ClassFilter{})
	require.NoError(t, err)
	require.False(t, hit)
}

func TestClassServiceGetUnknownClass(t *testing.T) {
	svc := NewClassService(&mockClassRepo{}, nil, nil, 0, nil)

	_, err := svc.Get(context.Background(), "missing")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
