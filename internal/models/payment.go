package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	PaymentStatus  string // Статус платежа
	DeliveryStatus string // Статус доставки
	DeliveryType   string // Способ получения товара
)

const (
	PendingPayment PaymentStatus = "PENDING" // Платёж открыт, ждёт подтверждения шлюза
	SuccessPayment PaymentStatus = "SUCCESS" // Платёж подтверждён
	FailedPayment  PaymentStatus = "FAILED"  // Платёж отклонён шлюзом

	PendingDelivery   DeliveryStatus = "PENDING"   // Доставка ожидается
	CompletedDelivery DeliveryStatus = "COMPLETED" // Доставка завершена

	PickupDelivery  DeliveryType = "PICKUP"   // Самовывоз
	CourierDelivery DeliveryType = "DELIVERY" // Доставка курьером
)

// Payment представляет модель платежа победителя аукциона.
type Payment struct {
	ID                string          `json:"id"`
	AuctionID         string          `json:"auctionId"`
	BidderID          string          `json:"bidderId"`
	Amount            decimal.Decimal `json:"amount"`
	ExternalPaymentID string          `json:"externalPaymentId"`
	Status            PaymentStatus   `json:"status"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Delivery представляет модель доставки выигранного лота.
type Delivery struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auctionId"`
	Type      DeliveryType    `json:"type"`
	Address   string          `json:"address,omitempty"`
	Fee       decimal.Decimal `json:"fee"`
	Status    DeliveryStatus  `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Commission представляет комиссию площадки с завершённого аукциона.
type Commission struct {
	ID         string          `json:"id"`
	AuctionID  string          `json:"auctionId"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// CheckoutRequest представляет структуру запроса на оплату выигранного аукциона.
type CheckoutRequest struct {
	AuctionID string `json:"auctionId"`
}

// CheckoutResponse возвращает победителю данные для завершения оплаты.
type CheckoutResponse struct {
	PaymentID    string        `json:"paymentId"`
	ClientSecret string        `json:"clientSecret"`
	Status       PaymentStatus `json:"status"`
}

// GatewayEvent представляет подтверждение платёжного шлюза (webhook).
type GatewayEvent struct {
	EventType       string `json:"eventType"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// DeliveryRequest представляет структуру запроса на создание доставки.
type DeliveryRequest struct {
	AuctionID string          `json:"auctionId"`
	Type      DeliveryType    `json:"type"`
	Address   string          `json:"address,omitempty"`
	Fee       decimal.Decimal `json:"fee"`
}

// DeliveryUpdateRequest представляет структуру запроса на изменение доставки.
type DeliveryUpdateRequest struct {
	Type    DeliveryType    `json:"type"`
	Address string          `json:"address,omitempty"`
	Fee     decimal.Decimal `json:"fee"`
}
