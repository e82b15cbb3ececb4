package models

import (
	"time"
)

type ProductStatus string // Статус товара

const (
	PendingProduct           ProductStatus = "PENDING"            // Товар подан, ждёт проверки документов
	DocApprovedProduct       ProductStatus = "DOC_APPROVED"       // Документы одобрены, ждёт осмотра
	DocRejectedProduct       ProductStatus = "DOC_REJECTED"       // Документы отклонены
	InspectionPendingProduct ProductStatus = "INSPECTION_PENDING" // Осмотр в процессе
	ApprovedProduct          ProductStatus = "APPROVED"           // Товар допущен к аукциону
	RejectedProduct          ProductStatus = "REJECTED"           // Товар отклонён после осмотра
	AuctionedProduct         ProductStatus = "AUCTIONED"          // Товар выставлен на аукцион
	SoldProduct              ProductStatus = "SOLD"               // Товар продан
)

// Product представляет модель товара.
type Product struct {
	ID              string        `json:"id"`
	SellerID        string        `json:"sellerId"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	Status          ProductStatus `json:"status"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	ReviewRemarks   string        `json:"reviewRemarks,omitempty"`
	Version         int32         `json:"version"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// ProductRequest представляет структуру запроса для подачи товара.
type ProductRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// IsTerminal сообщает, является ли статус товара конечным.
func (s ProductStatus) IsTerminal() bool {
	return s == DocRejectedProduct || s == RejectedProduct || s == SoldProduct
}
