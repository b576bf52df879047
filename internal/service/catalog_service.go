package service

import (
	"context"
	"encoding/json"
	"time"

	"fulfillment/internal/dto"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const itemCacheTTL = 5 * time.Minute

// CatalogService is the read-only view of items. Items have no lifecycle
// here beyond existing; seeding happens out of band.
type CatalogService interface {
	Get(ctx context.Context, id uuid.UUID) (*dto.ItemResponse, error)
	List(ctx context.Context, filter dto.ItemFilter) (*dto.ItemListResponse, error)
	// Resolve loads the given items; missing ids are absent from the map.
	Resolve(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Item, error)
}

type catalogService struct {
	repo repository.ItemRepository
	rdb  *redis.Client
}

// NewCatalogService caches single-item lookups in Redis when rdb is non-nil.
func NewCatalogService(repo repository.ItemRepository, rdb *redis.Client) CatalogService {
	return &catalogService{repo: repo, rdb: rdb}
}

func itemCacheKey(id uuid.UUID) string { return "item:" + id.String() }

func (s *catalogService) Get(ctx context.Context, id uuid.UUID) (*dto.ItemResponse, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, itemCacheKey(id)).Bytes(); err == nil {
			var resp dto.ItemResponse
			if json.Unmarshal(cached, &resp) == nil {
				return &resp, nil
			}
		}
	}

	it, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "item")
	}
	resp := itemToResponse(*it)

	if s.rdb != nil {
		if b, err := json.Marshal(resp); err == nil {
			_ = s.rdb.Set(context.Background(), itemCacheKey(id), b, itemCacheTTL).Err()
		}
	}
	return &resp, nil
}

func (s *catalogService) List(ctx context.Context, filter dto.ItemFilter) (*dto.ItemListResponse, error) {
	items, total, err := s.repo.List(ctx, repository.ItemFilter{
		Name:  filter.Name,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := &dto.ItemListResponse{
		Data:  make([]dto.ItemResponse, 0, len(items)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for _, it := range items {
		out.Data = append(out.Data, itemToResponse(it))
	}
	return out, nil
}

func (s *catalogService) Resolve(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Item, error) {
	return s.repo.FindByIDs(ctx, ids)
}
