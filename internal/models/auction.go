package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string // Статус аукциона

const (
	ScheduledAuction AuctionStatus = "SCHEDULED" // Аукцион запланирован
	LiveAuction      AuctionStatus = "LIVE"      // Аукцион идёт
	EndedAuction     AuctionStatus = "ENDED"     // Аукцион завершён со ставками
	CancelledAuction AuctionStatus = "CANCELLED" // Аукцион отменён
	NoBidsAuction    AuctionStatus = "NO_BIDS"   // Аукцион завершён без ставок
)

// Auction представляет модель аукциона.
type Auction struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	SellerID        string          `json:"sellerId"`
	StartPrice      decimal.Decimal `json:"startPrice"`
	CurrentPrice    decimal.Decimal `json:"currentPrice"`
	MinIncrement    decimal.Decimal `json:"minIncrement"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	Status          AuctionStatus   `json:"status"`
	LeadingBidderID string          `json:"leadingBidderId,omitempty"`
	Version         int32           `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// AuctionCreateRequest представляет структуру запроса для создания аукциона.
type AuctionCreateRequest struct {
	ProductID    string          `json:"productId"`
	StartPrice   decimal.Decimal `json:"startPrice"`
	MinIncrement decimal.Decimal `json:"minIncrement"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      time.Time       `json:"endTime"`
}

// IsTerminal сообщает, является ли статус аукциона конечным.
func (s AuctionStatus) IsTerminal() bool {
	return s == EndedAuction || s == CancelledAuction || s == NoBidsAuction
}
