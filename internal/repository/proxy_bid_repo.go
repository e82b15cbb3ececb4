package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/senyabanana/auction-service/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ProxyBidRepository - интерфейс для работы с прокси-ставками.
type ProxyBidRepository interface {
	// Upsert создаёт прокси-ставку или обновляет максимум существующей.
	// created_at при обновлении сохраняется: он участвует в разрешении ничьих.
	Upsert(ctx context.Context, proxy *models.ProxyBid) error
	GetByAuctionAndBidder(ctx context.Context, auctionID, bidderID string) (*models.ProxyBid, error)
	// ListActiveByAuction возвращает активные прокси-ставки аукциона,
	// по убыванию максимума, при равенстве - раньше созданные первыми.
	ListActiveByAuction(ctx context.Context, auctionID string) ([]models.ProxyBid, error)
	Deactivate(ctx context.Context, proxyID string) error
	UpdateCurrentAmount(ctx context.Context, proxyID string, amount decimal.Decimal) error
}

// PostgresProxyBidRepository - реализация ProxyBidRepository для базы данных.
type PostgresProxyBidRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresProxyBidRepository создаёт новый экземпляр PostgresProxyBidRepository.
func NewPostgresProxyBidRepository(db *pgxpool.Pool) *PostgresProxyBidRepository {
	return &PostgresProxyBidRepository{DB: db}
}

const proxyBidColumns = `id, auction_id, bidder_id, max_amount, current_amount, active, created_at`

// Upsert создаёт или обновляет прокси-ставку участника.
func (r *PostgresProxyBidRepository) Upsert(ctx context.Context, proxy *models.ProxyBid) error {
	if proxy.ID == "" {
		proxy.ID = uuid.New().String()
	}
	if proxy.CreatedAt.IsZero() {
		proxy.CreatedAt = time.Now().UTC()
	}
	row := r.DB.QueryRow(ctx, `
       INSERT INTO proxy_bids (id, auction_id, bidder_id, max_amount, current_amount, active, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7)
       ON CONFLICT (auction_id, bidder_id)
       DO UPDATE SET max_amount = EXCLUDED.max_amount, current_amount = EXCLUDED.current_amount, active = EXCLUDED.active
       RETURNING `+proxyBidColumns,
		proxy.ID,
		proxy.AuctionID,
		proxy.BidderID,
		proxy.MaxAmount,
		proxy.CurrentAmount,
		proxy.Active,
		proxy.CreatedAt)
	saved, err := scanProxyBid(row)
	if err != nil {
		return fmt.Errorf("failed to upsert proxy bid: %w", err)
	}
	*proxy = *saved
	return nil
}

// GetByAuctionAndBidder возвращает прокси-ставку участника на аукционе.
func (r *PostgresProxyBidRepository) GetByAuctionAndBidder(ctx context.Context, auctionID, bidderID string) (*models.ProxyBid, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+proxyBidColumns+` FROM proxy_bids
        WHERE auction_id = $1 AND bidder_id = $2`, auctionID, bidderID)
	return scanProxyBid(row)
}

// ListActiveByAuction возвращает активные прокси-ставки аукциона.
func (r *PostgresProxyBidRepository) ListActiveByAuction(ctx context.Context, auctionID string) ([]models.ProxyBid, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+proxyBidColumns+` FROM proxy_bids
        WHERE auction_id = $1 AND active ORDER BY max_amount DESC, created_at`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proxies []models.ProxyBid
	for rows.Next() {
		p, err := scanProxyBid(rows)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, *p)
	}
	return proxies, rows.Err()
}

// Deactivate помечает прокси-ставку исчерпанной.
func (r *PostgresProxyBidRepository) Deactivate(ctx context.Context, proxyID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE proxy_bids SET active = false WHERE id = $1`, proxyID)
	return err
}

// UpdateCurrentAmount сохраняет текущую сумму автоторга прокси-ставки.
func (r *PostgresProxyBidRepository) UpdateCurrentAmount(ctx context.Context, proxyID string, amount decimal.Decimal) error {
	_, err := r.DB.Exec(ctx, `UPDATE proxy_bids SET current_amount = $1 WHERE id = $2`, amount, proxyID)
	return err
}

func scanProxyBid(row pgx.Row) (*models.ProxyBid, error) {
	var p models.ProxyBid
	err := row.Scan(
		&p.ID,
		&p.AuctionID,
		&p.BidderID,
		&p.MaxAmount,
		&p.CurrentAmount,
		&p.Active,
		&p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
