// Package gateway содержит интерфейс платёжного шлюза.
// Шлюз - внешняя ненадёжная зависимость: вызовы могут падать,
// повторы и идемпотентность обеспечивает вызывающая сторона.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Intent представляет платёжное намерение, открытое на стороне шлюза.
type Intent struct {
	ID           string
	ClientSecret string
}

// PaymentGateway - интерфейс создания и получения платёжных намерений.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
}
