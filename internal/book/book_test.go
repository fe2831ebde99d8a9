package book

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func usd(v int64) money.Money { return money.NewFromInt(v, "USD") }

func qty(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newOrder(t require.TestingT, side models.Side, price int64, quantity string, at time.Time) *models.Order {
	o, err := models.NewOrder(models.OrderParams{
		UserID:    1,
		Symbol:    "BTC-USD",
		Side:      side,
		Price:     usd(price),
		Quantity:  qty(quantity),
		CreatedAt: at,
	})
	require.NoError(t, err)
	return o
}

// tenths formats v/10, e.g. 15 -> "1.5"
func tenths(v int) string { return decimal.New(int64(v), -1).String() }
