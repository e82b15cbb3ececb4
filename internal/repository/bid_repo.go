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
)

// BidRepository - интерфейс для работы с журналом ставок.
// Ставки только добавляются, записи никогда не изменяются и не удаляются.
type BidRepository interface {
	Append(ctx context.Context, bid *models.Bid) error
	// GetByIdempotencyKey возвращает ранее принятую ставку с тем же ключом идемпотентности.
	GetByIdempotencyKey(ctx context.Context, auctionID, key string) (*models.Bid, error)
	ListByAuction(ctx context.Context, auctionID string, limit, offset int) ([]models.Bid, error)
	ListByBidder(ctx context.Context, bidderID string, limit, offset int) ([]models.Bid, error)
	HasBids(ctx context.Context, auctionID string) (bool, error)
}

// PostgresBidRepository - реализация BidRepository для базы данных.
type PostgresBidRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresBidRepository создаёт новый экземпляр PostgresBidRepository.
func NewPostgresBidRepository(db *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{DB: db}
}

const bidColumns = `id, auction_id, bidder_id, amount, bid_type, idempotency_key, created_at`

// Append добавляет запись ставки в журнал.
func (r *PostgresBidRepository) Append(ctx context.Context, bid *models.Bid) error {
	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now().UTC()
	}
	var key any
	if bid.IdempotencyKey != "" {
		key = bid.IdempotencyKey
	}
	_, err := r.DB.Exec(ctx, `
       INSERT INTO bids (id, auction_id, bidder_id, amount, bid_type, idempotency_key, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7)
   `,
		bid.ID,
		bid.AuctionID,
		bid.BidderID,
		bid.Amount,
		bid.Type,
		key,
		bid.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetByIdempotencyKey возвращает ставку по ключу идемпотентности.
func (r *PostgresBidRepository) GetByIdempotencyKey(ctx context.Context, auctionID, key string) (*models.Bid, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids
        WHERE auction_id = $1 AND idempotency_key = $2`, auctionID, key)
	return scanBid(row)
}

// ListByAuction возвращает журнал ставок аукциона, новые сверху.
func (r *PostgresBidRepository) ListByAuction(ctx context.Context, auctionID string, limit, offset int) ([]models.Bid, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+bidColumns+` FROM bids
        WHERE auction_id = $1 ORDER BY created_at DESC, amount DESC LIMIT $2 OFFSET $3`, auctionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBids(rows)
}

// ListByBidder возвращает ставки пользователя, новые сверху.
func (r *PostgresBidRepository) ListByBidder(ctx context.Context, bidderID string, limit, offset int) ([]models.Bid, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+bidColumns+` FROM bids
        WHERE bidder_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, bidderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBids(rows)
}

// HasBids сообщает, есть ли у аукциона хотя бы одна ставка.
func (r *PostgresBidRepository) HasBids(ctx context.Context, auctionID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bids WHERE auction_id = $1)`, auctionID).Scan(&exists)
	return exists, err
}

func scanBid(row pgx.Row) (*models.Bid, error) {
	var (
		b   models.Bid
		key *string
	)
	err := row.Scan(
		&b.ID,
		&b.AuctionID,
		&b.BidderID,
		&b.Amount,
		&b.Type,
		&key,
		&b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if key != nil {
		b.IdempotencyKey = *key
	}
	return &b, nil
}

func collectBids(rows pgx.Rows) ([]models.Bid, error) {
	var bids []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}
