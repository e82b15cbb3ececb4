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

// PaymentRepository - интерфейс для работы с платежами и комиссиями площадки.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByAuction(ctx context.Context, auctionID string) (*models.Payment, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	// CreateCommission сохраняет комиссию, не более одной на аукцион.
	CreateCommission(ctx context.Context, commission *models.Commission) error
	CommissionExists(ctx context.Context, auctionID string) (bool, error)
	ListByBidder(ctx context.Context, bidderID string, limit, offset int) ([]models.Payment, error)
}

// PostgresPaymentRepository - реализация PaymentRepository для базы данных.
type PostgresPaymentRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresPaymentRepository создаёт новый экземпляр PostgresPaymentRepository.
func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{DB: db}
}

const paymentColumns = `id, auction_id, bidder_id, amount, external_payment_id, status, paid_at, created_at`

// Create сохраняет новый платёж.
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.Exec(ctx, `
       INSERT INTO payments (id, auction_id, bidder_id, amount, external_payment_id, status, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7)
   `,
		payment.ID,
		payment.AuctionID,
		payment.BidderID,
		payment.Amount,
		payment.ExternalPaymentID,
		payment.Status,
		payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetByAuction возвращает платёж аукциона.
func (r *PostgresPaymentRepository) GetByAuction(ctx context.Context, auctionID string) (*models.Payment, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE auction_id = $1`, auctionID)
	return scanPayment(row)
}

// GetByExternalID возвращает платёж по идентификатору платёжного шлюза.
func (r *PostgresPaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_payment_id = $1`, externalID)
	return scanPayment(row)
}

// Update сохраняет статус платежа.
func (r *PostgresPaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	_, err := r.DB.Exec(ctx, `
        UPDATE payments SET status = $1, external_payment_id = $2, paid_at = $3 WHERE id = $4
    `,
		payment.Status,
		payment.ExternalPaymentID,
		payment.PaidAt,
		payment.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

// CreateCommission сохраняет комиссию площадки по аукциону.
func (r *PostgresPaymentRepository) CreateCommission(ctx context.Context, commission *models.Commission) error {
	if commission.ID == "" {
		commission.ID = uuid.New().String()
	}
	if commission.CreatedAt.IsZero() {
		commission.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.Exec(ctx, `
       INSERT INTO commissions (id, auction_id, percentage, amount, created_at)
       VALUES ($1, $2, $3, $4, $5)
       ON CONFLICT (auction_id) DO NOTHING
   `,
		commission.ID,
		commission.AuctionID,
		commission.Percentage,
		commission.Amount,
		commission.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert commission: %w", err)
	}
	return nil
}

// CommissionExists сообщает, записана ли уже комиссия по аукциону.
func (r *PostgresPaymentRepository) CommissionExists(ctx context.Context, auctionID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM commissions WHERE auction_id = $1)`, auctionID).Scan(&exists)
	return exists, err
}

// ListByBidder возвращает платежи пользователя.
func (r *PostgresPaymentRepository) ListByBidder(ctx context.Context, bidderID string, limit, offset int) ([]models.Payment, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+paymentColumns+` FROM payments
        WHERE bidder_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, bidderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID,
		&p.AuctionID,
		&p.BidderID,
		&p.Amount,
		&p.ExternalPaymentID,
		&p.Status,
		&p.PaidAt,
		&p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
