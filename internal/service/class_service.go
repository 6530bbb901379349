package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.GymClass, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.GymClass, int, error)
}

type classCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

const classListCachePrefix = "classes:list"

type cachedClassList struct {
	Classes    []models.GymClass  `json:"classes"`
	Pagination *models.Pagination `json:"pagination"`
}

// ClassService serves class listings, caching pages in Redis because seat
// counts are read far more often than they change.
type ClassService struct {
	repo     classRepository
	cache    classCache
	metrics  cacheMetrics
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, cache classCache, metrics cacheMetrics, cacheTTL time.Duration, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

// List returns classes with pagination metadata, served from cache when a
// fresh page exists. The boolean reports whether the page came from cache.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.GymClass, *models.Pagination, bool, error) {
	key := classListCacheKey(filter)
	if s.cache != nil {
		start := time.Now()
		var cached cachedClassList
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return cached.Classes, cached.Pagination, true, nil
		}
		if appErrors.FromError(err).Code != appErrors.ErrCacheMiss.Code {
			s.logger.Warn("class list cache read failed", zap.Error(err))
		}
	}

	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, cachedClassList{Classes: classes, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("class list cache write failed", zap.Error(err))
		}
	}
	return classes, pagination, false, nil
}

// Get returns a single class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.GymClass, error) {
	cls, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return cls, nil
}

// InvalidateListings drops every cached class page. Called after any write
// that moves a seat counter.
func (s *ClassService) InvalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, classListCachePrefix+":*"); err != nil {
		s.logger.Warn("class list cache invalidation failed", zap.Error(err))
	}
}

func classListCacheKey(filter models.ClassFilter) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%s:%s", classListCachePrefix, filter.Status, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}
