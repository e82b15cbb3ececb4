package repository

import (
	"reflect"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/senyabanana/auction-service/internal/models"
)

// stubRow подставляет значения колонок в цели Scan. nil означает NULL.
type stubRow struct {
	vals []any
}

func (r stubRow) Scan(dest ...any) error {
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.vals[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

func TestNullableID(t *testing.T) {
	check.Equal(t, nil, nullableID(""))
	check.Equal(t, any("bidder-1"), nullableID("bidder-1"))
}

// Аукцион без лидера хранит NULL в leading_bidder_id и
// читается обратно с пустым LeadingBidderID.
func TestScanAuctionWithoutLeader(t *testing.T) {
	createdAt := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	row := stubRow{vals: []any{
		"auction-1",
		"product-1",
		"seller-1",
		decimal.NewFromInt(100),
		decimal.NewFromInt(100),
		decimal.NewFromInt(10),
		createdAt.Add(time.Hour),
		createdAt.Add(2 * time.Hour),
		models.ScheduledAuction,
		nil,
		int32(1),
		createdAt,
	}}

	auction, err := scanAuction(row)
	assert.NoError(t, err)
	check.Equal(t, "", auction.LeadingBidderID)
	check.Equal(t, "auction-1", auction.ID)
	check.True(t, auction.StartPrice.Equal(decimal.NewFromInt(100)))
}
