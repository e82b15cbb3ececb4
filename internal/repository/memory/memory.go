// Package memory содержит реализацию репозиториев в памяти.
// Используется в тестах бизнес-логики и при локальном запуске без базы;
// повторяет семантику Postgres-реализаций, включая compare-and-swap по версии.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store - общее хранилище всех сущностей в памяти.
// Отдельные репозитории получаются методами Products, Auctions и т.д.
type Store struct {
	mu          sync.Mutex
	products    map[string]models.Product
	inspections map[string]models.Inspection
	auctions    map[string]models.Auction
	bids        []models.Bid
	proxies     map[string]models.ProxyBid
	payments    map[string]models.Payment
	commissions map[string]models.Commission
	deliveries  map[string]models.Delivery
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		products:    make(map[string]models.Product),
		inspections: make(map[string]models.Inspection),
		auctions:    make(map[string]models.Auction),
		proxies:     make(map[string]models.ProxyBid),
		payments:    make(map[string]models.Payment),
		commissions: make(map[string]models.Commission),
		deliveries:  make(map[string]models.Delivery),
	}
}

// Products возвращает репозиторий товаров.
func (s *Store) Products() repository.ProductRepository { return &productRepo{s} }

// Inspections возвращает репозиторий осмотров.
func (s *Store) Inspections() repository.InspectionRepository { return &inspectionRepo{s} }

// Auctions возвращает репозиторий аукционов.
func (s *Store) Auctions() repository.AuctionRepository { return &auctionRepo{s} }

// Bids возвращает репозиторий ставок.
func (s *Store) Bids() repository.BidRepository { return &bidRepo{s} }

// ProxyBids возвращает репозиторий прокси-ставок.
func (s *Store) ProxyBids() repository.ProxyBidRepository { return &proxyBidRepo{s} }

// Payments возвращает репозиторий платежей.
func (s *Store) Payments() repository.PaymentRepository { return &paymentRepo{s} }

// Deliveries возвращает репозиторий доставок.
func (s *Store) Deliveries() repository.DeliveryRepository { return &deliveryRepo{s} }

type productRepo struct{ s *Store }

func (r *productRepo) Create(_ context.Context, sellerID string, req models.ProductRequest) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p := models.Product{
		ID:          uuid.New().String(),
		SellerID:    sellerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Status:      models.PendingProduct,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	r.s.products[p.ID] = p
	return &p, nil
}

func (r *productRepo) GetByID(_ context.Context, productID string) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *productRepo) ListBySeller(_ context.Context, sellerID string, limit, offset int) ([]models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Product
	for _, p := range r.s.products {
		if p.SellerID == sellerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *productRepo) ListByStatus(_ context.Context, statuses []string, limit, offset int) ([]models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Product
	for _, p := range r.s.products {
		for _, st := range statuses {
			if string(p.Status) == st {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *productRepo) Update(_ context.Context, product *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.products[product.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != product.Version {
		return repository.ErrVersionConflict
	}
	product.Version++
	r.s.products[product.ID] = *product
	return nil
}

type inspectionRepo struct{ s *Store }

func (r *inspectionRepo) Create(_ context.Context, productID, inspectorID string) (*models.Inspection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i := models.Inspection{
		ID:          uuid.New().String(),
		ProductID:   productID,
		InspectorID: inspectorID,
		Status:      models.OpenInspection,
		CreatedAt:   time.Now().UTC(),
	}
	r.s.inspections[i.ID] = i
	return &i, nil
}

func (r *inspectionRepo) GetByID(_ context.Context, inspectionID string) (*models.Inspection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i, ok := r.s.inspections[inspectionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &i, nil
}

func (r *inspectionRepo) GetOpenByProduct(_ context.Context, productID string) (*models.Inspection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, i := range r.s.inspections {
		if i.ProductID == productID && i.Status == models.OpenInspection {
			return &i, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *inspectionRepo) UpdateStatus(_ context.Context, inspectionID string, status models.InspectionStatus, remarks string) (*models.Inspection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i, ok := r.s.inspections[inspectionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	i.Status = status
	i.Remarks = remarks
	r.s.inspections[inspectionID] = i
	return &i, nil
}

type auctionRepo struct{ s *Store }

func (r *auctionRepo) Create(_ context.Context, auction *models.Auction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if auction.ID == "" {
		auction.ID = uuid.New().String()
	}
	r.s.auctions[auction.ID] = *auction
	return nil
}

func (r *auctionRepo) GetByID(_ context.Context, auctionID string) (*models.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.auctions[auctionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *auctionRepo) GetActiveByProduct(_ context.Context, productID string) (*models.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.auctions {
		if a.ProductID == productID && !a.Status.IsTerminal() {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *auctionRepo) ListByStatus(_ context.Context, status models.AuctionStatus, limit, offset int) ([]models.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Auction
	for _, a := range r.s.auctions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return page(out, limit, offset), nil
}

func (r *auctionRepo) ListWonByUser(_ context.Context, userID string, limit, offset int) ([]models.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Auction
	for _, a := range r.s.auctions {
		if a.LeadingBidderID == userID && a.Status == models.EndedAuction {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.After(out[j].EndTime) })
	return page(out, limit, offset), nil
}

func (r *auctionRepo) ListDueToStart(_ context.Context, now time.Time) ([]models.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Auction
	for _, a := range r.s.auctions {
		if a.Status == models.ScheduledAuction && !a.StartTime.After(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *auctionRepo) ListDueToEnd(_ context.Context, now time.Time) ([]models.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Auction
	for _, a := range r.s.auctions {
		if a.Status == models.LiveAuction && !a.EndTime.After(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (r *auctionRepo) Update(_ context.Context, auction *models.Auction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.auctions[auction.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != auction.Version {
		return repository.ErrVersionConflict
	}
	auction.Version++
	r.s.auctions[auction.ID] = *auction
	return nil
}

type bidRepo struct{ s *Store }

func (r *bidRepo) Append(_ context.Context, bid *models.Bid) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now().UTC()
	}
	if bid.IdempotencyKey != "" {
		for _, b := range r.s.bids {
			if b.AuctionID == bid.AuctionID && b.IdempotencyKey == bid.IdempotencyKey {
				return repository.ErrDuplicate
			}
		}
	}
	r.s.bids = append(r.s.bids, *bid)
	return nil
}

func (r *bidRepo) GetByIdempotencyKey(_ context.Context, auctionID, key string) (*models.Bid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, b := range r.s.bids {
		if b.AuctionID == auctionID && b.IdempotencyKey == key {
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *bidRepo) ListByAuction(_ context.Context, auctionID string, limit, offset int) ([]models.Bid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Bid
	for _, b := range r.s.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	// Журнал хранится в порядке добавления, наружу отдаём новые сверху.
	reverse(out)
	return page(out, limit, offset), nil
}

func (r *bidRepo) ListByBidder(_ context.Context, bidderID string, limit, offset int) ([]models.Bid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Bid
	for _, b := range r.s.bids {
		if b.BidderID == bidderID {
			out = append(out, b)
		}
	}
	reverse(out)
	return page(out, limit, offset), nil
}

func (r *bidRepo) HasBids(_ context.Context, auctionID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, b := range r.s.bids {
		if b.AuctionID == auctionID {
			return true, nil
		}
	}
	return false, nil
}

type proxyBidRepo struct{ s *Store }

func (r *proxyBidRepo) Upsert(_ context.Context, proxy *models.ProxyBid) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, p := range r.s.proxies {
		if p.AuctionID == proxy.AuctionID && p.BidderID == proxy.BidderID {
			p.MaxAmount = proxy.MaxAmount
			p.CurrentAmount = proxy.CurrentAmount
			p.Active = proxy.Active
			r.s.proxies[id] = p
			*proxy = p
			return nil
		}
	}
	if proxy.ID == "" {
		proxy.ID = uuid.New().String()
	}
	if proxy.CreatedAt.IsZero() {
		proxy.CreatedAt = time.Now().UTC()
	}
	r.s.proxies[proxy.ID] = *proxy
	return nil
}

func (r *proxyBidRepo) GetByAuctionAndBidder(_ context.Context, auctionID, bidderID string) (*models.ProxyBid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.proxies {
		if p.AuctionID == auctionID && p.BidderID == bidderID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *proxyBidRepo) ListActiveByAuction(_ context.Context, auctionID string) ([]models.ProxyBid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.ProxyBid
	for _, p := range r.s.proxies {
		if p.AuctionID == auctionID && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MaxAmount.Equal(out[j].MaxAmount) {
			return out[i].MaxAmount.GreaterThan(out[j].MaxAmount)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	return out, nil
}

func (r *proxyBidRepo) Deactivate(_ context.Context, proxyID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.proxies[proxyID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Active = false
	r.s.proxies[proxyID] = p
	return nil
}

func (r *proxyBidRepo) UpdateCurrentAmount(_ context.Context, proxyID string, amount decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.proxies[proxyID]
	if !ok {
		return repository.ErrNotFound
	}
	p.CurrentAmount = amount
	r.s.proxies[proxyID] = p
	return nil
}

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Create(_ context.Context, payment *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.payments {
		if p.AuctionID == payment.AuctionID {
			return repository.ErrDuplicate
		}
	}
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	r.s.payments[payment.ID] = *payment
	return nil
}

func (r *paymentRepo) GetByAuction(_ context.Context, auctionID string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.payments {
		if p.AuctionID == auctionID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *paymentRepo) GetByExternalID(_ context.Context, externalID string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.payments {
		if p.ExternalPaymentID == externalID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *paymentRepo) Update(_ context.Context, payment *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.payments[payment.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.payments[payment.ID] = *payment
	return nil
}

func (r *paymentRepo) CreateCommission(_ context.Context, commission *models.Commission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, c := range r.s.commissions {
		if c.AuctionID == commission.AuctionID {
			return nil
		}
	}
	if commission.ID == "" {
		commission.ID = uuid.New().String()
	}
	if commission.CreatedAt.IsZero() {
		commission.CreatedAt = time.Now().UTC()
	}
	r.s.commissions[commission.ID] = *commission
	return nil
}

func (r *paymentRepo) CommissionExists(_ context.Context, auctionID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, c := range r.s.commissions {
		if c.AuctionID == auctionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *paymentRepo) ListByBidder(_ context.Context, bidderID string, limit, offset int) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.Payment
	for _, p := range r.s.payments {
		if p.BidderID == bidderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

type deliveryRepo struct{ s *Store }

func (r *deliveryRepo) CreateIfAbsent(_ context.Context, delivery *models.Delivery) (*models.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, d := range r.s.deliveries {
		if d.AuctionID == delivery.AuctionID {
			return &d, nil
		}
	}
	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	r.s.deliveries[delivery.ID] = *delivery
	return delivery, nil
}

func (r *deliveryRepo) GetByID(_ context.Context, deliveryID string) (*models.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.deliveries[deliveryID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *deliveryRepo) GetByAuction(_ context.Context, auctionID string) (*models.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, d := range r.s.deliveries {
		if d.AuctionID == auctionID {
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *deliveryRepo) Update(_ context.Context, delivery *models.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.deliveries[delivery.ID]
	if !ok {
		return repository.ErrNotFound
	}
	d.Type = delivery.Type
	d.Address = delivery.Address
	d.Fee = delivery.Fee
	r.s.deliveries[delivery.ID] = d
	return nil
}

func (r *deliveryRepo) UpdateStatus(_ context.Context, deliveryID string, status models.DeliveryStatus) (*models.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.deliveries[deliveryID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d.Status = status
	r.s.deliveries[deliveryID] = d
	return &d, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
