package services

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository/memory"
)

type auctionFixture struct {
	store   *memory.Store
	emitter *notify.CaptureEmitter
	svc     *AuctionService
	product *models.Product
}

func newAuctionFixture(t *testing.T) *auctionFixture {
	t.Helper()
	store := memory.NewStore()
	emitter := &notify.CaptureEmitter{}

	svc := NewAuctionService(store.Auctions(), store.Products(), store.Bids(), NewAuctionLocks(), emitter)
	svc.now = func() time.Time { return baseTime }

	product, err := store.Products().Create(context.Background(), "seller-1", models.ProductRequest{
		Title:       "vintage watch",
		Description: "1960s chronograph",
		Category:    "watches",
	})
	assert.NoError(t, err)
	product.Status = models.ApprovedProduct
	assert.NoError(t, store.Products().Update(context.Background(), product))

	return &auctionFixture{store: store, emitter: emitter, svc: svc, product: product}
}

func (f *auctionFixture) createRequest() models.AuctionCreateRequest {
	return models.AuctionCreateRequest{
		ProductID:    f.product.ID,
		StartPrice:   decimal.NewFromInt(100),
		MinIncrement: decimal.NewFromInt(10),
		StartTime:    baseTime.Add(time.Hour),
		EndTime:      baseTime.Add(2 * time.Hour),
	}
}

func TestCreateAuction(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	auction, err := f.svc.Create(ctx, seller, f.createRequest())
	assert.NoError(t, err)
	check.Equal(t, models.ScheduledAuction, auction.Status)
	check.True(t, auction.CurrentPrice.Equal(auction.StartPrice))

	product, err := f.store.Products().GetByID(ctx, f.product.ID)
	assert.NoError(t, err)
	check.Equal(t, models.AuctionedProduct, product.Status)
	check.True(t, containsKind(f.emitter.Kinds(), notify.AuctionScheduled))
}

func TestCreateAuctionRequiresApprovedProduct(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	f.product.Status = models.PendingProduct
	assert.NoError(t, f.store.Products().Update(ctx, f.product))

	_, err := f.svc.Create(ctx, seller, f.createRequest())
	check.Equal(t, models.CodeNotApproved, errorCode(t, err))
}

func TestCreateAuctionRequiresOwnership(t *testing.T) {
	f := newAuctionFixture(t)

	other := models.Principal{UserID: "seller-2", Role: models.RoleSeller}
	_, err := f.svc.Create(context.Background(), other, f.createRequest())
	check.Equal(t, models.CodeForbidden, errorCode(t, err))
}

func TestCreateAuctionInvalidWindow(t *testing.T) {
	f := newAuctionFixture(t)

	req := f.createRequest()
	req.EndTime = req.StartTime.Add(-time.Minute)
	_, err := f.svc.Create(context.Background(), seller, req)
	check.Equal(t, models.CodeInvalidWindow, errorCode(t, err))

	req = f.createRequest()
	req.StartTime = baseTime.Add(-2 * time.Hour)
	req.EndTime = baseTime.Add(-time.Hour)
	_, err = f.svc.Create(context.Background(), seller, req)
	check.Equal(t, models.CodeInvalidWindow, errorCode(t, err))

	// Начало в прошлом отклоняется и при корректном конце окна.
	req = f.createRequest()
	req.StartTime = baseTime.Add(-time.Hour)
	req.EndTime = baseTime.Add(2 * time.Hour)
	_, err = f.svc.Create(context.Background(), seller, req)
	check.Equal(t, models.CodeInvalidWindow, errorCode(t, err))
}

func TestCreateAuctionOnePerProduct(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, seller, f.createRequest())
	assert.NoError(t, err)

	// Товар уже AUCTIONED, повторное создание отбивается статусом.
	_, err = f.svc.Create(ctx, seller, f.createRequest())
	check.Equal(t, models.CodeNotApproved, errorCode(t, err))
}

func TestStartAuction(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	auction, err := f.svc.Create(ctx, seller, f.createRequest())
	assert.NoError(t, err)

	_, err = f.svc.Start(ctx, admin, auction.ID)
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))

	f.svc.now = func() time.Time { return baseTime.Add(time.Hour) }
	started, err := f.svc.Start(ctx, admin, auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.LiveAuction, started.Status)
	check.True(t, containsKind(f.emitter.Kinds(), notify.AuctionStarted))
}

func TestEndAuctionWithBids(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	auction, err := f.svc.Create(ctx, seller, f.createRequest())
	assert.NoError(t, err)
	f.svc.now = func() time.Time { return baseTime.Add(time.Hour) }
	_, err = f.svc.Start(ctx, admin, auction.ID)
	assert.NoError(t, err)

	auction, err = f.store.Auctions().GetByID(ctx, auction.ID)
	assert.NoError(t, err)
	auction.CurrentPrice = decimal.NewFromInt(150)
	auction.LeadingBidderID = "alice"
	assert.NoError(t, f.store.Auctions().Update(ctx, auction))
	assert.NoError(t, f.store.Bids().Append(ctx, &models.Bid{
		AuctionID: auction.ID,
		BidderID:  "alice",
		Amount:    decimal.NewFromInt(150),
		Type:      models.ManualBid,
	}))

	f.svc.now = func() time.Time { return baseTime.Add(3 * time.Hour) }
	ended, err := f.svc.End(ctx, admin, auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.EndedAuction, ended.Status)
	check.True(t, containsKind(f.emitter.Kinds(), notify.AuctionWon))
	check.True(t, containsKind(f.emitter.Kinds(), notify.AuctionEnded))
}

func TestEndAuctionWithoutBids(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	auction, err := f.svc.Create(ctx, seller, f.createRequest())
	assert.NoError(t, err)
	f.svc.now = func() time.Time { return baseTime.Add(time.Hour) }
	_, err = f.svc.Start(ctx, admin, auction.ID)
	assert.NoError(t, err)

	f.svc.now = func() time.Time { return baseTime.Add(3 * time.Hour) }
	ended, err := f.svc.End(ctx, admin, auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.NoBidsAuction, ended.Status)

	// Лот без ставок возвращается в пул допущенных товаров.
	product, err := f.store.Products().GetByID(ctx, f.product.ID)
	assert.NoError(t, err)
	check.Equal(t, models.ApprovedProduct, product.Status)
	check.False(t, containsKind(f.emitter.Kinds(), notify.AuctionWon))
}

func TestEndAuctionBeforeDeadline(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	auction, err := f.svc.Create(ctx, seller, f.createRequest())
	assert.NoError(t, err)
	f.svc.now = func() time.Time { return baseTime.Add(time.Hour) }
	_, err = f.svc.Start(ctx, admin, auction.ID)
	assert.NoError(t, err)

	_, err = f.svc.End(ctx, admin, auction.ID)
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestCancelAuction(t *testing.T) {
	f := newAuctionFixture(t)
	ctx := context.Background()

	auction, err := f.svc.Create(ctx, seller, f.createRequest())
	assert.NoError(t, err)

	stranger := models.Principal{UserID: "someone", Role: models.RoleBidder}
	_, err = f.svc.Cancel(ctx, stranger, auction.ID)
	check.Equal(t, models.CodeForbidden, errorCode(t, err))

	cancelled, err := f.svc.Cancel(ctx, seller, auction.ID)
	assert.NoError(t, err)
	check.Equal(t, models.CancelledAuction, cancelled.Status)

	product, err := f.store.Products().GetByID(ctx, f.product.ID)
	assert.NoError(t, err)
	check.Equal(t, models.ApprovedProduct, product.Status)

	_, err = f.svc.Cancel(ctx, seller, auction.ID)
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}
