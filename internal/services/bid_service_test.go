package services

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository/memory"
)

var baseTime = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type bidFixture struct {
	store   *memory.Store
	emitter *notify.CaptureEmitter
	svc     *BidService
	auction *models.Auction
}

// newBidFixture поднимает идущий аукцион: старт 100, шаг 10.
func newBidFixture(t *testing.T) *bidFixture {
	t.Helper()
	store := memory.NewStore()
	emitter := &notify.CaptureEmitter{}
	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)

	svc := NewBidService(store.Auctions(), store.Bids(), store.ProxyBids(), NewAuctionLocks(), emitter, nil, logger)
	svc.now = func() time.Time { return baseTime }

	auction := &models.Auction{
		ID:           "auction-1",
		ProductID:    "product-1",
		SellerID:     "seller-1",
		StartPrice:   decimal.NewFromInt(100),
		CurrentPrice: decimal.NewFromInt(100),
		MinIncrement: decimal.NewFromInt(10),
		StartTime:    baseTime.Add(-time.Hour),
		EndTime:      baseTime.Add(time.Hour),
		Status:       models.LiveAuction,
		Version:      1,
		CreatedAt:    baseTime.Add(-2 * time.Hour),
	}
	assert.NoError(t, store.Auctions().Create(context.Background(), auction))

	return &bidFixture{store: store, emitter: emitter, svc: svc, auction: auction}
}

func (f *bidFixture) reload(t *testing.T) *models.Auction {
	t.Helper()
	auction, err := f.store.Auctions().GetByID(context.Background(), f.auction.ID)
	assert.NoError(t, err)
	return auction
}

func bidder(id string) models.Principal {
	return models.Principal{UserID: id, Role: models.RoleBidder}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var serviceErr *models.ErrorResponse
	assert.True(t, errors.As(err, &serviceErr))
	return serviceErr.Code
}

func TestFirstManualBidAtStartPrice(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	bid, err := f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "")
	assert.NoError(t, err)
	check.Equal(t, models.ManualBid, bid.Type)

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(decimal.NewFromInt(100)))
	check.Equal(t, "alice", auction.LeadingBidderID)
}

func TestFirstManualBidBelowStartPrice(t *testing.T) {
	f := newBidFixture(t)

	_, err := f.svc.SubmitBid(context.Background(), bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(99)}, "")
	check.Equal(t, models.CodeBidTooLow, errorCode(t, err))
}

func TestManualBidMustBeatIncrement(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "")
	assert.NoError(t, err)

	_, err = f.svc.SubmitBid(ctx, bidder("bob"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(105)}, "")
	check.Equal(t, models.CodeBidTooLow, errorCode(t, err))

	_, err = f.svc.SubmitBid(ctx, bidder("bob"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(110)}, "")
	check.NoError(t, err)
	check.Equal(t, "bob", f.reload(t).LeadingBidderID)
}

func TestSellerCannotBid(t *testing.T) {
	f := newBidFixture(t)

	_, err := f.svc.SubmitBid(context.Background(), bidder("seller-1"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "")
	check.Equal(t, models.CodeForbidden, errorCode(t, err))
}

func TestManualLeaderCannotRebid(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "")
	assert.NoError(t, err)

	_, err = f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(120)}, "")
	check.Equal(t, models.CodeStateConflict, errorCode(t, err))
}

// Первая прокси-ставка двигает цену на один шаг, не раскрывая максимум.
func TestFirstProxySetsMinimalPrice(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	proxy, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(200)})
	assert.NoError(t, err)
	check.True(t, proxy.Active)
	check.True(t, proxy.CurrentAmount.Equal(decimal.NewFromInt(110)))

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(decimal.NewFromInt(110)))
	check.Equal(t, "alice", auction.LeadingBidderID)

	bids, err := f.store.Bids().ListByAuction(ctx, f.auction.ID, 10, 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(bids))
	check.Equal(t, models.ProxyGeneratedBid, bids[0].Type)
}

func TestFirstProxyBelowIncrementStillLeads(t *testing.T) {
	f := newBidFixture(t)

	proxy, err := f.svc.SubmitProxyBid(context.Background(), bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(105)})
	assert.NoError(t, err)
	check.True(t, proxy.CurrentAmount.Equal(decimal.NewFromInt(105)))
	check.True(t, f.reload(t).CurrentPrice.Equal(decimal.NewFromInt(105)))
}

// Лидирующая прокси автоматически отвечает на ручную ставку.
func TestProxyDefendsAgainstManualBid(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(200)})
	assert.NoError(t, err)

	_, err = f.svc.SubmitBid(ctx, bidder("bob"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(150)}, "")
	assert.NoError(t, err)

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(decimal.NewFromInt(160)))
	check.Equal(t, "alice", auction.LeadingBidderID)

	// Отбившаяся прокси лидерство не теряла: Outbid уходит только бобу.
	var outbid []string
	for _, ev := range f.emitter.Events() {
		if ev.Kind == notify.Outbid {
			outbid = append(outbid, ev.RecipientID)
		}
	}
	check.Equal(t, []string{"bob"}, outbid)
}

// Максимум прокси покрывает ставку, но не следующий шаг: прокси выбывает.
func TestProxyExhaustedByManualBid(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(200)})
	assert.NoError(t, err)

	_, err = f.svc.SubmitBid(ctx, bidder("bob"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(195)}, "")
	assert.NoError(t, err)

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(decimal.NewFromInt(195)))
	check.Equal(t, "bob", auction.LeadingBidderID)

	proxy, err := f.store.ProxyBids().GetByAuctionAndBidder(ctx, f.auction.ID, "alice")
	assert.NoError(t, err)
	check.False(t, proxy.Active)
	check.True(t, containsKind(f.emitter.Kinds(), notify.ProxyExhausted))
}

// Действующая прокси защищается от более слабой: шаг поверх чужого
// максимума, но не выше собственного потолка.
func TestIncumbentProxyDefeatsWeakerProxy(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(300)})
	assert.NoError(t, err)

	loser, err := f.svc.SubmitProxyBid(ctx, bidder("bob"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(250)})
	assert.NoError(t, err)
	check.False(t, loser.Active)

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(decimal.NewFromInt(260)))
	check.Equal(t, "alice", auction.LeadingBidderID)

	bids, err := f.store.Bids().ListByAuction(ctx, f.auction.ID, 10, 0)
	assert.NoError(t, err)
	// 110 от первой прокси и защитные 260, новые сверху.
	assert.Equal(t, 2, len(bids))
	check.Equal(t, "alice", bids[0].BidderID)
	check.True(t, bids[0].Amount.Equal(decimal.NewFromInt(260)))
}

func TestStrongerProxyTakesLead(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(200)})
	assert.NoError(t, err)

	_, err = f.svc.SubmitProxyBid(ctx, bidder("bob"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(300)})
	assert.NoError(t, err)

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(decimal.NewFromInt(210)))
	check.Equal(t, "bob", auction.LeadingBidderID)

	old, err := f.store.ProxyBids().GetByAuctionAndBidder(ctx, f.auction.ID, "alice")
	assert.NoError(t, err)
	check.False(t, old.Active)
}

// Равные максимумы: лидерство остаётся у более ранней прокси, цена не растёт.
func TestEqualProxyMaximumsEarlierWins(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(300)})
	assert.NoError(t, err)
	priceBefore := f.reload(t).CurrentPrice

	f.svc.now = func() time.Time { return baseTime.Add(time.Minute) }
	loser, err := f.svc.SubmitProxyBid(ctx, bidder("bob"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(300)})
	assert.NoError(t, err)
	check.False(t, loser.Active)

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(priceBefore))
	check.Equal(t, "alice", auction.LeadingBidderID)
}

func TestSelfOutbidRejected(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(200)})
	assert.NoError(t, err)

	_, err = f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(150)}, "")
	check.Equal(t, models.CodeSelfOutbid, errorCode(t, err))
}

// Лидер двигает собственный потолок без изменения цены.
func TestLeaderRaisesOwnCeiling(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(200)})
	assert.NoError(t, err)
	priceBefore := f.reload(t).CurrentPrice

	proxy, err := f.svc.SubmitProxyBid(ctx, bidder("alice"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(500)})
	assert.NoError(t, err)
	check.True(t, proxy.MaxAmount.Equal(decimal.NewFromInt(500)))

	auction := f.reload(t)
	check.True(t, auction.CurrentPrice.Equal(priceBefore))
	check.Equal(t, "alice", auction.LeadingBidderID)
}

func TestProxyTooLow(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "")
	assert.NoError(t, err)

	_, err = f.svc.SubmitProxyBid(ctx, bidder("bob"), f.auction.ID, models.ProxyBidRequest{MaxAmount: decimal.NewFromInt(105)})
	check.Equal(t, models.CodeProxyTooLow, errorCode(t, err))
}

func TestIdempotencyKeyReplay(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	first, err := f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "key-1")
	assert.NoError(t, err)

	replay, err := f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "key-1")
	assert.NoError(t, err)
	check.Equal(t, first.ID, replay.ID)

	bids, err := f.store.Bids().ListByAuction(ctx, f.auction.ID, 10, 0)
	assert.NoError(t, err)
	check.Equal(t, 1, len(bids))
}

// Окно проверяется в момент обработки: ставка по закрытому аукциону
// отклоняется, даже если статус ещё LIVE.
func TestBidAfterWindowCloses(t *testing.T) {
	f := newBidFixture(t)
	f.svc.now = func() time.Time { return f.auction.EndTime }

	_, err := f.svc.SubmitBid(context.Background(), bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "")
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestBidOnScheduledAuction(t *testing.T) {
	f := newBidFixture(t)
	ctx := context.Background()

	f.auction.Status = models.ScheduledAuction
	assert.NoError(t, f.store.Auctions().Update(ctx, f.auction))

	_, err := f.svc.SubmitBid(ctx, bidder("alice"), f.auction.ID, models.BidRequest{BidAmount: decimal.NewFromInt(100)}, "")
	check.Equal(t, models.CodeInvalidState, errorCode(t, err))
}

func TestGetPriceFallsBackToDatabase(t *testing.T) {
	f := newBidFixture(t)

	snapshot, err := f.svc.GetPrice(context.Background(), f.auction.ID)
	assert.NoError(t, err)
	check.True(t, snapshot.CurrentPrice.Equal(decimal.NewFromInt(100)))
}

func containsKind(kinds []notify.EventKind, kind notify.EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
