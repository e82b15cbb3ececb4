// Package scheduler запускает и завершает аукционы по расписанию.
// Точных дедлайнов нет: тикер с небольшим интервалом подбирает
// просроченные аукционы, переходы выполняются теми же охраняемыми
// операциями, что и ручные вызовы.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/senyabanana/auction-service/internal/models"
	"github.com/senyabanana/auction-service/internal/repository"
	"github.com/senyabanana/auction-service/internal/services"
)

// schedulerPrincipal - служебный пользователь переходов по расписанию.
var schedulerPrincipal = models.Principal{UserID: "scheduler", Role: models.RoleAdmin}

// Scheduler периодически проверяет аукционы, у которых наступило
// время старта или завершения.
type Scheduler struct {
	auctions repository.AuctionRepository
	service  *services.AuctionService
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// NewScheduler создаёт новый экземпляр Scheduler.
func NewScheduler(auctions repository.AuctionRepository, service *services.AuctionService, interval time.Duration, logger *log.Logger) *Scheduler {
	return &Scheduler{
		auctions: auctions,
		service:  service,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run крутит цикл до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick выполняет один проход: стартует и завершает просроченные аукционы.
// Ошибки отдельных аукционов логируются и не останавливают проход.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	due, err := s.auctions.ListDueToStart(ctx, now)
	if err != nil {
		s.logger.Printf("scheduler: failed to list auctions due to start: %v", err)
	} else {
		for _, auction := range due {
			if _, err := s.service.Start(ctx, schedulerPrincipal, auction.ID); err != nil {
				s.logger.Printf("scheduler: failed to start auction %s: %v", auction.ID, err)
			}
		}
	}

	ending, err := s.auctions.ListDueToEnd(ctx, now)
	if err != nil {
		s.logger.Printf("scheduler: failed to list auctions due to end: %v", err)
		return
	}
	for _, auction := range ending {
		if _, err := s.service.End(ctx, schedulerPrincipal, auction.ID); err != nil {
			s.logger.Printf("scheduler: failed to end auction %s: %v", auction.ID, err)
		}
	}
}
