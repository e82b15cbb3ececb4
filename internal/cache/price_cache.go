// Package cache содержит снапшот текущей цены аукциона в Redis.
// Снапшот пишется после фиксации ставки и служит точкой раздачи
// для внешнего слоя трансляции; источником истины остаётся база.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// PriceSnapshot представляет последнюю зафиксированную цену аукциона.
type PriceSnapshot struct {
	AuctionID       string          `json:"auctionId"`
	CurrentPrice    decimal.Decimal `json:"currentPrice"`
	LeadingBidderID string          `json:"leadingBidderId,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// PriceCache пишет и читает снапшоты цен в Redis.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache создаёт новый экземпляр PriceCache.
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{client: client, ttl: ttl}
}

func key(auctionID string) string {
	return "auction:price:" + auctionID
}

// Publish сохраняет снапшот цены аукциона.
func (c *PriceCache) Publish(ctx context.Context, snapshot PriceSnapshot) error {
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(snapshot.AuctionID), data, c.ttl).Err()
}

// Get возвращает снапшот цены аукциона, если он есть.
func (c *PriceCache) Get(ctx context.Context, auctionID string) (*PriceSnapshot, error) {
	data, err := c.client.Get(ctx, key(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snapshot PriceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
