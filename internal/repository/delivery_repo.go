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

// DeliveryRepository - интерфейс для работы с доставками.
type DeliveryRepository interface {
	// CreateIfAbsent создаёт доставку по аукциону, если её ещё нет,
	// и возвращает существующую в противном случае. На аукцион приходится
	// не более одной доставки, каким бы путём она ни была создана.
	CreateIfAbsent(ctx context.Context, delivery *models.Delivery) (*models.Delivery, error)
	GetByID(ctx context.Context, deliveryID string) (*models.Delivery, error)
	GetByAuction(ctx context.Context, auctionID string) (*models.Delivery, error)
	Update(ctx context.Context, delivery *models.Delivery) error
	UpdateStatus(ctx context.Context, deliveryID string, status models.DeliveryStatus) (*models.Delivery, error)
}

// PostgresDeliveryRepository - реализация DeliveryRepository для базы данных.
type PostgresDeliveryRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresDeliveryRepository создаёт новый экземпляр PostgresDeliveryRepository.
func NewPostgresDeliveryRepository(db *pgxpool.Pool) *PostgresDeliveryRepository {
	return &PostgresDeliveryRepository{DB: db}
}

const deliveryColumns = `id, auction_id, delivery_type, address, fee, status, created_at`

// CreateIfAbsent создаёт доставку или возвращает уже существующую.
func (r *PostgresDeliveryRepository) CreateIfAbsent(ctx context.Context, delivery *models.Delivery) (*models.Delivery, error) {
	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	tag, err := r.DB.Exec(ctx, `
       INSERT INTO deliveries (id, auction_id, delivery_type, address, fee, status, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7)
       ON CONFLICT (auction_id) DO NOTHING
   `,
		delivery.ID,
		delivery.AuctionID,
		delivery.Type,
		delivery.Address,
		delivery.Fee,
		delivery.Status,
		delivery.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.GetByAuction(ctx, delivery.AuctionID)
	}
	return delivery, nil
}

// GetByID возвращает доставку по её ID.
func (r *PostgresDeliveryRepository) GetByID(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, deliveryID)
	return scanDelivery(row)
}

// GetByAuction возвращает доставку аукциона.
func (r *PostgresDeliveryRepository) GetByAuction(ctx context.Context, auctionID string) (*models.Delivery, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE auction_id = $1`, auctionID)
	return scanDelivery(row)
}

// Update сохраняет изменённые способ, адрес и стоимость доставки.
func (r *PostgresDeliveryRepository) Update(ctx context.Context, delivery *models.Delivery) error {
	tag, err := r.DB.Exec(ctx, `
        UPDATE deliveries SET delivery_type = $1, address = $2, fee = $3 WHERE id = $4
    `,
		delivery.Type,
		delivery.Address,
		delivery.Fee,
		delivery.ID)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus переводит доставку в новый статус.
func (r *PostgresDeliveryRepository) UpdateStatus(ctx context.Context, deliveryID string, status models.DeliveryStatus) (*models.Delivery, error) {
	row := r.DB.QueryRow(ctx, `
        UPDATE deliveries SET status = $1 WHERE id = $2
        RETURNING `+deliveryColumns,
		status, deliveryID)
	return scanDelivery(row)
}

func scanDelivery(row pgx.Row) (*models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(
		&d.ID,
		&d.AuctionID,
		&d.Type,
		&d.Address,
		&d.Fee,
		&d.Status,
		&d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
