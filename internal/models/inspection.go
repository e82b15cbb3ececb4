package models

import "time"

type InspectionStatus string // Статус осмотра

const (
	OpenInspection     InspectionStatus = "OPEN"     // Осмотр открыт
	ApprovedInspection InspectionStatus = "APPROVED" // Осмотр пройден
	RejectedInspection InspectionStatus = "REJECTED" // Осмотр не пройден
)

// Inspection представляет модель физического осмотра товара.
type Inspection struct {
	ID          string           `json:"id"`
	ProductID   string           `json:"productId"`
	InspectorID string           `json:"inspectorId"`
	Status      InspectionStatus `json:"status"`
	Remarks     string           `json:"remarks,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// InspectionDecisionRequest представляет структуру запроса решения по осмотру.
type InspectionDecisionRequest struct {
	Remarks string `json:"remarks,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
