package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BidType string // Тип ставки

const (
	ManualBid         BidType = "MANUAL"          // Ставка сделана вручную
	ProxyGeneratedBid BidType = "PROXY_GENERATED" // Ставка сгенерирована прокси-ставкой
)

// Bid представляет неизменяемую запись ставки, журнал движения цены.
type Bid struct {
	ID             string          `json:"id"`
	AuctionID      string          `json:"auctionId"`
	BidderID       string          `json:"bidderId"`
	Amount         decimal.Decimal `json:"bidAmount"`
	Type           BidType         `json:"bidType"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ProxyBid представляет скрытый максимум участника для автоторга.
type ProxyBid struct {
	ID            string          `json:"id"`
	AuctionID     string          `json:"auctionId"`
	BidderID      string          `json:"bidderId"`
	MaxAmount     decimal.Decimal `json:"maxAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// BidRequest представляет структуру запроса для ручной ставки.
type BidRequest struct {
	BidAmount decimal.Decimal `json:"bidAmount"`
}

// ProxyBidRequest представляет структуру запроса для прокси-ставки.
type ProxyBidRequest struct {
	MaxAmount decimal.Decimal `json:"maxAmount"`
}
