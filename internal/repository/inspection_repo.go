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

// InspectionRepository - интерфейс для работы с осмотрами товаров.
type InspectionRepository interface {
	Create(ctx context.Context, productID, inspectorID string) (*models.Inspection, error)
	GetByID(ctx context.Context, inspectionID string) (*models.Inspection, error)
	// GetOpenByProduct возвращает открытый осмотр товара, если он есть.
	GetOpenByProduct(ctx context.Context, productID string) (*models.Inspection, error)
	UpdateStatus(ctx context.Context, inspectionID string, status models.InspectionStatus, remarks string) (*models.Inspection, error)
}

// PostgresInspectionRepository - реализация InspectionRepository для базы данных.
type PostgresInspectionRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresInspectionRepository создаёт новый экземпляр PostgresInspectionRepository.
func NewPostgresInspectionRepository(db *pgxpool.Pool) *PostgresInspectionRepository {
	return &PostgresInspectionRepository{DB: db}
}

const inspectionColumns = `id, product_id, inspector_id, status, remarks, created_at`

// Create сохраняет новый открытый осмотр.
func (r *PostgresInspectionRepository) Create(ctx context.Context, productID, inspectorID string) (*models.Inspection, error) {
	newInspection := models.Inspection{
		ID:          uuid.New().String(),
		ProductID:   productID,
		InspectorID: inspectorID,
		Status:      models.OpenInspection,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.DB.Exec(ctx, `
       INSERT INTO inspections (id, product_id, inspector_id, status, created_at)
       VALUES ($1, $2, $3, $4, $5)
   `,
		newInspection.ID,
		newInspection.ProductID,
		newInspection.InspectorID,
		newInspection.Status,
		newInspection.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert inspection: %w", err)
	}
	return &newInspection, nil
}

// GetByID возвращает осмотр по его ID.
func (r *PostgresInspectionRepository) GetByID(ctx context.Context, inspectionID string) (*models.Inspection, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id = $1`, inspectionID)
	return scanInspection(row)
}

// GetOpenByProduct возвращает открытый осмотр по товару.
func (r *PostgresInspectionRepository) GetOpenByProduct(ctx context.Context, productID string) (*models.Inspection, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+inspectionColumns+` FROM inspections
        WHERE product_id = $1 AND status = $2`, productID, models.OpenInspection)
	return scanInspection(row)
}

// UpdateStatus переводит осмотр в конечный статус.
func (r *PostgresInspectionRepository) UpdateStatus(ctx context.Context, inspectionID string, status models.InspectionStatus, remarks string) (*models.Inspection, error) {
	row := r.DB.QueryRow(ctx, `
        UPDATE inspections SET status = $1, remarks = $2
        WHERE id = $3
        RETURNING `+inspectionColumns,
		status, remarks, inspectionID)
	return scanInspection(row)
}

func scanInspection(row pgx.Row) (*models.Inspection, error) {
	var i models.Inspection
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.InspectorID,
		&i.Status,
		&i.Remarks,
		&i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}
