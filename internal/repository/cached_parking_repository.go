package repository

import (
	"context"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/pkg/logger"
)

// CachedParkingRepository реализует ParkingRepository с кешированием
type CachedParkingRepository struct {
	repo  ParkingRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedParkingRepository создает новый репозиторий с кешированием
func NewCachedParkingRepository(repo ParkingRepository, cache *RedisCacheRepository, log *logger.Logger) ParkingRepository {
	return &CachedParkingRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetByID получает парковку по ID (сначала из кеша, потом из БД)
func (r *CachedParkingRepository) GetByID(ctx context.Context, id int64) (*domain.Parking, error) {
	cached, err := r.cache.GetCachedParking(ctx, id)
	if err != nil {
		// Продолжаем выполнение при ошибке кеша
		r.log.Warnw("Error getting parking from cache", "error", err, "parkingID", id)
	}
	if cached != nil {
		return cached, nil
	}

	parking, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheParking(ctx, parking); err != nil {
		r.log.Warnw("Failed to cache parking after retrieval", "error", err, "parkingID", id)
	}
	return parking, nil
}
