package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/senyabanana/auction-service/internal/gateway"
	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository/memory"
)

// fakeGateway считает вызовы и может падать заданное число раз.
type fakeGateway struct {
	created  int
	fetched  int
	failures int
}

func (g *fakeGateway) CreateIntent(_ context.Context, auctionID, _ string, _ decimal.Decimal) (*gateway.Intent, error) {
	if g.failures > 0 {
		g.failures--
		return nil, errors.New("gateway unavailable")
	}
	g.created++
	id := fmt.Sprintf("pi_%s_%d", auctionID, g.created)
	return &gateway.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, intentID string) (*gateway.Intent, error) {
	if g.failures > 0 {
		g.failures--
		return nil, errors.New("gateway unavailable")
	}
	g.fetched++
	return &gateway.Intent{ID: intentID, ClientSecret: intentID + "_secret"}, nil
}

type settlementFixture struct {
	store   *memory.Store
	emitter *notify.CaptureEmitter
	gw      *fakeGateway
	svc     *SettlementService
	auction *models.Auction
	winner  models.Principal
}

// newSettlementFixture поднимает завершённый аукцион с победителем alice на 150.
func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	emitter := &notify.CaptureEmitter{}
	gw := &fakeGateway{}
	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)

	svc := NewSettlementService(store.Payments(), store.Deliveries(), store.Auctions(), store.Products(), gw, emitter, logger)
	svc.now = func() time.Time { return baseTime }

	product, err := store.Products().Create(ctx, "seller-1", models.ProductRequest{Title: "vintage watch", Description: "d", Category: "watches"})
	assert.NoError(t, err)
	product.Status = models.AuctionedProduct
	assert.NoError(t, store.Products().Update(ctx, product))

	auction := &models.Auction{
		ID:              "auction-1",
		ProductID:       product.ID,
		SellerID:        "seller-1",
		StartPrice:      decimal.NewFromInt(100),
		CurrentPrice:    decimal.NewFromInt(150),
		MinIncrement:    decimal.NewFromInt(10),
		StartTime:       baseTime.Add(-3 * time.Hour),
		EndTime:         baseTime.Add(-time.Hour),
		Status:          models.EndedAuction,
		LeadingBidderID: "alice",
		Version:         1,
		CreatedAt:       baseTime.Add(-4 * time.Hour),
	}
	assert.NoError(t, store.Auctions().Create(ctx, auction))

	return &settlementFixture{
		store:   store,
		emitter: emitter,
		gw:      gw,
		svc:     svc,
		auction: auction,
		winner:  models.Principal{UserID: "alice", Role: models.RoleBidder},
	}
}

func TestCheckoutOpensPaymentAndCommission(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	checkout, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.PendingPayment, checkout.Status)
	check.NotEqual(t, "", checkout.ClientSecret)

	payment, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.True(t, payment.Amount.Equal(decimal.NewFromInt(150)))

	// Комиссия 5% записана один раз.
	exists, err := f.store.Payments().CommissionExists(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.True(t, exists)
}

func TestCheckoutOnlyForWinner(t *testing.T) {
	f := newSettlementFixture(t)

	loser := models.Principal{UserID: "bob", Role: models.RoleBidder}
	_, err := f.svc.InitiateCheckout(context.Background(), loser, f.auction.ID)
	check.Equal(t, models.CodeForbidden, errorCode(t, err))
}

func TestCheckoutRequiresEndedAuction(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	f.auction.Status = models.LiveAuction
	assert.NoError(t, f.store.Auctions().Update(ctx, f.auction))

	_, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

// Повторный checkout с живым платежом не создаёт новое намерение.
func TestCheckoutReusesPendingIntent(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	first, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	second, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)

	check.Equal(t, first.PaymentID, second.PaymentID)
	check.Equal(t, 1, f.gw.created)
	check.Equal(t, 1, f.gw.fetched)
}

func TestCheckoutRetriesGateway(t *testing.T) {
	f := newSettlementFixture(t)
	f.gw.failures = 2

	checkout, err := f.svc.InitiateCheckout(context.Background(), f.winner, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.PendingPayment, checkout.Status)
}

func TestCheckoutGatewayDown(t *testing.T) {
	f := newSettlementFixture(t)
	f.gw.failures = 100

	_, err := f.svc.InitiateCheckout(context.Background(), f.winner, f.auction.ID)
	check.Equal(t, models.CodeExternalFailure, errorCode(t, err))
}

// Успешный webhook доводит сагу до конца: SUCCESS, доставка, SOLD.
func TestWebhookSuccessCompletesSaga(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	payment, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)

	err = f.svc.HandleGatewayEvent(ctx, models.GatewayEvent{
		EventType:       "payment_intent.succeeded",
		PaymentIntentID: payment.ExternalPaymentID,
	})
	assert.NoError(t, err)

	paid, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.SuccessPayment, paid.Status)
	assert.True(t, paid.PaidAt != nil)

	delivery, err := f.store.Deliveries().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.PendingDelivery, delivery.Status)

	product, err := f.store.Products().GetByID(ctx, f.auction.ProductID)
	assert.NoError(t, err)
	check.Equal(t, models.SoldProduct, product.Status)
	check.True(t, containsKind(f.emitter.Kinds(), notify.PaymentSucceeded))
}

// Шлюз доставляет события как минимум один раз: повтор сходится.
func TestWebhookSuccessIsIdempotent(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	payment, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)

	event := models.GatewayEvent{EventType: "payment_intent.succeeded", PaymentIntentID: payment.ExternalPaymentID}
	assert.NoError(t, f.svc.HandleGatewayEvent(ctx, event))
	firstDelivery, err := f.store.Deliveries().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)

	assert.NoError(t, f.svc.HandleGatewayEvent(ctx, event))
	secondDelivery, err := f.store.Deliveries().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, firstDelivery.ID, secondDelivery.ID)
}

func TestWebhookFailureReopensCheckout(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	payment, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)

	err = f.svc.HandleGatewayEvent(ctx, models.GatewayEvent{
		EventType:       "payment_intent.payment_failed",
		PaymentIntentID: payment.ExternalPaymentID,
	})
	assert.NoError(t, err)

	failed, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.FailedPayment, failed.Status)
	check.True(t, containsKind(f.emitter.Kinds(), notify.PaymentFailed))

	// Отклонённый платёж открывается заново с новым намерением.
	retried, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.PendingPayment, retried.Status)
	check.Equal(t, 2, f.gw.created)
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	payment, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)

	err = f.svc.HandleGatewayEvent(ctx, models.GatewayEvent{
		EventType:       "payment_intent.created",
		PaymentIntentID: payment.ExternalPaymentID,
	})
	check.NoError(t, err)

	unchanged, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.PendingPayment, unchanged.Status)
}

// Способ получения выбирается сразу после завершения аукциона, ещё до
// оплаты, и сходится с доставкой, которую позже заводит webhook.
func TestChooseDeliveryBeforePayment(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	chosen, err := f.svc.ChooseDelivery(ctx, f.winner, models.DeliveryRequest{
		AuctionID: f.auction.ID,
		Type:      models.CourierDelivery,
		Address:   "221B Baker Street",
		Fee:       decimal.NewFromInt(15),
	})
	assert.NoError(t, err)
	check.Equal(t, models.CourierDelivery, chosen.Type)

	_, err = f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	payment, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	assert.NoError(t, f.svc.HandleGatewayEvent(ctx, models.GatewayEvent{
		EventType:       "payment_intent.succeeded",
		PaymentIntentID: payment.ExternalPaymentID,
	}))

	delivery, err := f.store.Deliveries().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	check.Equal(t, chosen.ID, delivery.ID)
	check.Equal(t, models.CourierDelivery, delivery.Type)
}

func TestChooseDeliveryOnlyForWinner(t *testing.T) {
	f := newSettlementFixture(t)

	loser := models.Principal{UserID: "bob", Role: models.RoleBidder}
	_, err := f.svc.ChooseDelivery(context.Background(), loser, models.DeliveryRequest{
		AuctionID: f.auction.ID,
		Type:      models.PickupDelivery,
	})
	check.Equal(t, models.CodeForbidden, errorCode(t, err))
}

func TestChooseDeliveryRequiresEndedAuction(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	f.auction.Status = models.LiveAuction
	assert.NoError(t, f.store.Auctions().Update(ctx, f.auction))

	_, err := f.svc.ChooseDelivery(ctx, f.winner, models.DeliveryRequest{
		AuctionID: f.auction.ID,
		Type:      models.PickupDelivery,
	})
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestUpdateDelivery(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	chosen, err := f.svc.ChooseDelivery(ctx, f.winner, models.DeliveryRequest{
		AuctionID: f.auction.ID,
		Type:      models.PickupDelivery,
	})
	assert.NoError(t, err)

	updated, err := f.svc.UpdateDelivery(ctx, f.winner, chosen.ID, models.DeliveryUpdateRequest{
		Type:    models.CourierDelivery,
		Address: "221B Baker Street",
		Fee:     decimal.NewFromInt(15),
	})
	assert.NoError(t, err)
	check.Equal(t, models.CourierDelivery, updated.Type)
	check.Equal(t, "221B Baker Street", updated.Address)

	// Чужому участнику доставка не принадлежит.
	loser := models.Principal{UserID: "bob", Role: models.RoleBidder}
	_, err = f.svc.UpdateDelivery(ctx, loser, chosen.ID, models.DeliveryUpdateRequest{Type: models.PickupDelivery})
	check.Equal(t, models.CodeForbidden, errorCode(t, err))
}

func TestUpdateDeliveryAfterCompletionRejected(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	chosen, err := f.svc.ChooseDelivery(ctx, f.winner, models.DeliveryRequest{
		AuctionID: f.auction.ID,
		Type:      models.PickupDelivery,
	})
	assert.NoError(t, err)
	_, err = f.svc.CompleteDelivery(ctx, admin, chosen.ID)
	assert.NoError(t, err)

	_, err = f.svc.UpdateDelivery(ctx, f.winner, chosen.ID, models.DeliveryUpdateRequest{
		Type:    models.CourierDelivery,
		Address: "221B Baker Street",
	})
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestCompleteDelivery(t *testing.T) {
	f := newSettlementFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateCheckout(ctx, f.winner, f.auction.ID)
	assert.NoError(t, err)
	payment, err := f.store.Payments().GetByAuction(ctx, f.auction.ID)
	assert.NoError(t, err)
	assert.NoError(t, f.svc.HandleGatewayEvent(ctx, models.GatewayEvent{
		EventType:       "payment_intent.succeeded",
		PaymentIntentID: payment.ExternalPaymentID,
	}))

	delivery, err := f.svc.GetDelivery(ctx, f.auction.ID)
	assert.NoError(t, err)

	_, err = f.svc.CompleteDelivery(ctx, f.winner, delivery.ID)
	check.Equal(t, models.CodeForbidden, errorCode(t, err))

	completed, err := f.svc.CompleteDelivery(ctx, admin, delivery.ID)
	assert.NoError(t, err)
	check.Equal(t, models.CompletedDelivery, completed.Status)
}
