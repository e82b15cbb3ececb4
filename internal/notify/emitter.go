package notify

import (
	"context"
	"sync"
	"time"
)

type EventKind string // Вид доменного события

const (
	ProductStatusChanged EventKind = "ProductStatusChanged" // Товар сменил статус
	AuctionScheduled     EventKind = "AuctionScheduled"     // Аукцион запланирован
	AuctionStarted       EventKind = "AuctionStarted"       // Аукцион начался
	AuctionCancelled     EventKind = "AuctionCancelled"     // Аукцион отменён
	Outbid               EventKind = "Outbid"               // Участник потерял лидерство
	ProxyExhausted       EventKind = "ProxyExhausted"       // Прокси-ставка исчерпана
	AuctionWon           EventKind = "AuctionWon"           // Участник выиграл аукцион
	AuctionEnded         EventKind = "AuctionEnded"         // Аукцион завершён
	PaymentSucceeded     EventKind = "PaymentSucceeded"     // Платёж подтверждён
	PaymentFailed        EventKind = "PaymentFailed"        // Платёж отклонён
)

// Event представляет доменное событие для внешней системы доставки уведомлений.
// Сервис только публикует события, доставкой занимается внешний потребитель.
type Event struct {
	Kind        EventKind      `json:"kind"`
	RecipientID string         `json:"recipientId,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// Emitter - интерфейс публикации доменных событий.
// Реализация не должна блокировать вызывающую сторону надолго;
// ошибки доставки логируются, но не влияют на результат операции.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// CaptureEmitter собирает события в памяти. Используется в тестах.
type CaptureEmitter struct {
	mu     sync.Mutex
	events []Event
}

// Emit сохраняет событие.
func (e *CaptureEmitter) Emit(_ context.Context, event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// Events возвращает копию собранных событий.
func (e *CaptureEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Kinds возвращает виды собранных событий в порядке публикации.
func (e *CaptureEmitter) Kinds() []EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	var kinds []EventKind
	for _, ev := range e.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}
