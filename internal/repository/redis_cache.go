package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/parking-payments/internal/domain"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключей парковок
	parkingKeyPrefix = "parking:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование для репозиториев с использованием Redis
type RedisCacheRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория поверх готового клиента
func NewRedisCacheRepository(client redis.UniversalClient, ttl time.Duration, log *logger.Logger) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCacheRepository{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// CacheParking кеширует парковку в Redis
func (r *RedisCacheRepository) CacheParking(ctx context.Context, parking *domain.Parking) error {
	key := fmt.Sprintf("%s%d", parkingKeyPrefix, parking.ID)

	data, err := json.Marshal(parking)
	if err != nil {
		r.log.Errorw("Failed to marshal parking for caching", "error", err, "parkingID", parking.ID)
		return fmt.Errorf("failed to marshal parking: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache parking in Redis", "error", err, "parkingID", parking.ID)
		return fmt.Errorf("failed to cache parking: %w", err)
	}

	r.log.Debugw("Parking cached successfully", "parkingID", parking.ID)
	return nil
}

// GetCachedParking получает парковку из кеша. Промах кеша возвращает nil без ошибки.
func (r *RedisCacheRepository) GetCachedParking(ctx context.Context, parkingID int64) (*domain.Parking, error) {
	key := fmt.Sprintf("%s%d", parkingKeyPrefix, parkingID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Parking not found in cache", "parkingID", parkingID)
			return nil, nil
		}
		r.log.Errorw("Error getting parking from Redis", "error", err, "parkingID", parkingID)
		return nil, fmt.Errorf("failed to get parking from cache: %w", err)
	}

	var parking domain.Parking
	if err := json.Unmarshal(data, &parking); err != nil {
		r.log.Errorw("Failed to unmarshal cached parking", "error", err, "parkingID", parkingID)
		return nil, fmt.Errorf("failed to unmarshal cached parking: %w", err)
	}

	return &parking, nil
}

// DeleteCachedParking удаляет парковку из кеша
func (r *RedisCacheRepository) DeleteCachedParking(ctx context.Context, parkingID int64) error {
	key := fmt.Sprintf("%s%d", parkingKeyPrefix, parkingID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to delete parking from cache", "error", err, "parkingID", parkingID)
		return fmt.Errorf("failed to delete parking from cache: %w", err)
	}
	return nil
}
