package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"
)

// StripeGateway - реализация PaymentGateway поверх Stripe PaymentIntents.
type StripeGateway struct{}

// NewStripeGateway настраивает клиент Stripe и создаёт шлюз.
func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

// CreateIntent открывает платёжное намерение на сумму в долларах.
func (g *StripeGateway) CreateIntent(_ context.Context, auctionID, bidderID string, amount decimal.Decimal) (*Intent, error) {
	// Stripe принимает суммы в центах.
	cents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(cents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("auctionId", auctionID)
	params.AddMetadata("bidderId", bidderID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// GetIntent возвращает ранее открытое платёжное намерение.
func (g *StripeGateway) GetIntent(_ context.Context, intentID string) (*Intent, error) {
	pi, err := paymentintent.Get(intentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
