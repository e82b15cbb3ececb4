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

// AuctionRepository - интерфейс для работы с аукционами.
type AuctionRepository interface {
	Create(ctx context.Context, auction *models.Auction) error
	GetByID(ctx context.Context, auctionID string) (*models.Auction, error)
	// GetActiveByProduct возвращает неконечный аукцион товара, если он есть.
	GetActiveByProduct(ctx context.Context, productID string) (*models.Auction, error)
	ListByStatus(ctx context.Context, status models.AuctionStatus, limit, offset int) ([]models.Auction, error)
	ListWonByUser(ctx context.Context, userID string, limit, offset int) ([]models.Auction, error)
	// ListDueToStart возвращает запланированные аукционы, чьё время старта наступило.
	ListDueToStart(ctx context.Context, now time.Time) ([]models.Auction, error)
	// ListDueToEnd возвращает идущие аукционы, чьё время окончания наступило.
	ListDueToEnd(ctx context.Context, now time.Time) ([]models.Auction, error)
	// Update сохраняет аукцион по правилу compare-and-swap по версии.
	Update(ctx context.Context, auction *models.Auction) error
}

// PostgresAuctionRepository - реализация AuctionRepository для базы данных.
type PostgresAuctionRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresAuctionRepository создаёт новый экземпляр PostgresAuctionRepository.
func NewPostgresAuctionRepository(db *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{DB: db}
}

const auctionColumns = `id, product_id, seller_id, start_price, current_price, min_increment,
    start_time, end_time, status, leading_bidder_id, version, created_at`

// Create сохраняет новый аукцион.
func (r *PostgresAuctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	if auction.ID == "" {
		auction.ID = uuid.New().String()
	}
	_, err := r.DB.Exec(ctx, `
       INSERT INTO auctions (id, product_id, seller_id, start_price, current_price, min_increment,
           start_time, end_time, status, leading_bidder_id, version, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
   `,
		auction.ID,
		auction.ProductID,
		auction.SellerID,
		auction.StartPrice,
		auction.CurrentPrice,
		auction.MinIncrement,
		auction.StartTime,
		auction.EndTime,
		auction.Status,
		nullableID(auction.LeadingBidderID),
		auction.Version,
		auction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetByID возвращает аукцион по его ID.
func (r *PostgresAuctionRepository) GetByID(ctx context.Context, auctionID string) (*models.Auction, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	return scanAuction(row)
}

// GetActiveByProduct возвращает неконечный аукцион товара.
func (r *PostgresAuctionRepository) GetActiveByProduct(ctx context.Context, productID string) (*models.Auction, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions
        WHERE product_id = $1 AND status IN ($2, $3)`, productID, models.ScheduledAuction, models.LiveAuction)
	return scanAuction(row)
}

// ListByStatus возвращает список аукционов в указанном статусе.
func (r *PostgresAuctionRepository) ListByStatus(ctx context.Context, status models.AuctionStatus, limit, offset int) ([]models.Auction, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
        WHERE status = $1 ORDER BY end_time LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// ListWonByUser возвращает завершённые аукционы, выигранные пользователем.
func (r *PostgresAuctionRepository) ListWonByUser(ctx context.Context, userID string, limit, offset int) ([]models.Auction, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
        WHERE leading_bidder_id = $1 AND status = $2 ORDER BY end_time DESC LIMIT $3 OFFSET $4`,
		userID, models.EndedAuction, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// ListDueToStart возвращает запланированные аукционы с наступившим временем старта.
func (r *PostgresAuctionRepository) ListDueToStart(ctx context.Context, now time.Time) ([]models.Auction, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
        WHERE status = $1 AND start_time <= $2 ORDER BY start_time`, models.ScheduledAuction, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// ListDueToEnd возвращает идущие аукционы с наступившим временем окончания.
func (r *PostgresAuctionRepository) ListDueToEnd(ctx context.Context, now time.Time) ([]models.Auction, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
        WHERE status = $1 AND end_time <= $2 ORDER BY end_time`, models.LiveAuction, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// Update сохраняет аукцион с оптимистичной блокировкой по версии.
func (r *PostgresAuctionRepository) Update(ctx context.Context, auction *models.Auction) error {
	tag, err := r.DB.Exec(ctx, `
        UPDATE auctions
        SET current_price = $1, status = $2, leading_bidder_id = $3, version = version + 1
        WHERE id = $4 AND version = $5
    `,
		auction.CurrentPrice,
		auction.Status,
		nullableID(auction.LeadingBidderID),
		auction.ID,
		auction.Version)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	auction.Version++
	return nil
}

// nullableID отображает пустой идентификатор в NULL: колонка
// leading_bidder_id имеет тип UUID, и пустая строка туда не кодируется.
func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	var leader *string
	err := row.Scan(
		&a.ID,
		&a.ProductID,
		&a.SellerID,
		&a.StartPrice,
		&a.CurrentPrice,
		&a.MinIncrement,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&leader,
		&a.Version,
		&a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if leader != nil {
		a.LeadingBidderID = *leader
	}
	return &a, nil
}

func collectAuctions(rows pgx.Rows) ([]models.Auction, error) {
	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}
