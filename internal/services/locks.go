package services

import (
	"errors"
	"sync"
	"time"
)

// errLockTimeout возвращается, когда точка сериализации аукциона занята
// дольше допустимого времени ожидания.
var errLockTimeout = errors.New("auction lock timeout")

// AuctionLocks - точка сериализации операций по аукционам.
// Все мутирующие операции одного аукциона проходят через его замок
// по одной за раз; операции разных аукционов не мешают друг другу.
type AuctionLocks struct {
	locks sync.Map // auctionID -> chan struct{} ёмкостью 1
}

// NewAuctionLocks создаёт новый экземпляр AuctionLocks.
func NewAuctionLocks() *AuctionLocks {
	return &AuctionLocks{}
}

// Acquire захватывает замок аукциона не дольше timeout и возвращает
// функцию освобождения. При истечении времени возвращает errLockTimeout:
// очередь на горячем аукционе не растёт бесконечно, вызывающая сторона
// получает Busy и повторяет позже.
func (l *AuctionLocks) Acquire(auctionID string, timeout time.Duration) (func(), error) {
	v, _ := l.locks.LoadOrStore(auctionID, make(chan struct{}, 1))
	ch := v.(chan struct{})

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, errLockTimeout
	}
}
