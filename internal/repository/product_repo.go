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
	"github.com/lib/pq"
)

// ProductRepository - интерфейс для работы с товарами.
type ProductRepository interface {
	Create(ctx context.Context, sellerID string, req models.ProductRequest) (*models.Product, error)
	GetByID(ctx context.Context, productID string) (*models.Product, error)
	ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]models.Product, error)
	ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]models.Product, error)
	// Update сохраняет товар по правилу compare-and-swap: запись обновляется,
	// только если версия в базе совпадает с product.Version.
	Update(ctx context.Context, product *models.Product) error
}

// PostgresProductRepository - реализация ProductRepository для базы данных.
type PostgresProductRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresProductRepository создаёт новый экземпляр PostgresProductRepository.
func NewPostgresProductRepository(db *pgxpool.Pool) *PostgresProductRepository {
	return &PostgresProductRepository{DB: db}
}

const productColumns = `id, seller_id, title, description, category, status, rejection_reason, review_remarks, version, created_at`

// Create сохраняет новый товар в статусе PENDING.
func (r *PostgresProductRepository) Create(ctx context.Context, sellerID string, req models.ProductRequest) (*models.Product, error) {
	newProduct := models.Product{
		ID:          uuid.New().String(),
		SellerID:    sellerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Status:      models.PendingProduct,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.DB.Exec(ctx, `
       INSERT INTO products (id, seller_id, title, description, category, status, version, created_at)
       VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
   `,
		newProduct.ID,
		newProduct.SellerID,
		newProduct.Title,
		newProduct.Description,
		newProduct.Category,
		newProduct.Status,
		newProduct.Version,
		newProduct.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}
	return &newProduct, nil
}

// GetByID возвращает товар по его ID.
func (r *PostgresProductRepository) GetByID(ctx context.Context, productID string) (*models.Product, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	return scanProduct(row)
}

// ListBySeller возвращает список товаров продавца.
func (r *PostgresProductRepository) ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]models.Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products
        WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, sellerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// ListByStatus возвращает список товаров в указанных статусах.
func (r *PostgresProductRepository) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]models.Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products
        WHERE status = ANY($1) ORDER BY created_at LIMIT $2 OFFSET $3`, pq.Array(statuses), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// Update сохраняет товар с оптимистичной блокировкой по версии.
func (r *PostgresProductRepository) Update(ctx context.Context, product *models.Product) error {
	tag, err := r.DB.Exec(ctx, `
        UPDATE products
        SET status = $1, rejection_reason = $2, review_remarks = $3, version = version + 1
        WHERE id = $4 AND version = $5
    `,
		product.Status,
		product.RejectionReason,
		product.ReviewRemarks,
		product.ID,
		product.Version)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	product.Version++
	return nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID,
		&p.SellerID,
		&p.Title,
		&p.Description,
		&p.Category,
		&p.Status,
		&p.RejectionReason,
		&p.ReviewRemarks,
		&p.Version,
		&p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]models.Product, error) {
	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}
