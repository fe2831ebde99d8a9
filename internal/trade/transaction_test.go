package trade

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
	"pgregory.net/rapid"
)

const symbol models.Symbol = "BTC-USD"

func usd(v int64) money.Money { return money.NewFromInt(v, "USD") }

func qty(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newOrder(t require.TestingT, side models.Side, price int64, quantity string) *models.Order {
	o, err := models.NewOrder(models.OrderParams{
		UserID:   1,
		Symbol:   symbol,
		Side:     side,
		Price:    usd(price),
		Quantity: qty(quantity),
	})
	require.NoError(t, err)
	return o
}

func TestDetermineExecutionPrice(t *testing.T) {
	buy := newOrder(t, models.Buy, 46000, "1.0")
	sell := newOrder(t, models.Sell, 44000, "1.0")

	price, err := DetermineExecutionPrice(buy, sell)
	require.NoError(t, err)
	assert.True(t, price.Equal(usd(45000)))

	_, err = DetermineExecutionPrice(sell, buy)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "buy price is less than sell price")
}

func TestDetermineExecutionPrice_FinePrices(t *testing.T) {
	tests := []struct {
		name string
		buy  string
		sell string
		want string
	}{
		{"NineDecimals", "100.000000002", "100.000000001", "100.0000000015"},
		{"EighteenDecimals", "1.000000000000000001", "1", "1.0000000000000000005"},
		{"OneTickApart", "0.00000001", "0.000000009", "0.0000000095"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy, err := models.NewOrder(models.OrderParams{Symbol: symbol, Side: models.Buy,
				Price: money.New(qty(tt.buy), "USD"), Quantity: qty("1")})
			require.NoError(t, err)
			sell, err := models.NewOrder(models.OrderParams{Symbol: symbol, Side: models.Sell,
				Price: money.New(qty(tt.sell), "USD"), Quantity: qty("1")})
			require.NoError(t, err)

			price, err := DetermineExecutionPrice(buy, sell)
			require.NoError(t, err)
			assert.True(t, price.Amount().Equal(qty(tt.want)), "got %s", price)
			assert.True(t, price.IsGreaterThanOrEqual(sell.Price()))
			assert.True(t, buy.Price().IsGreaterThanOrEqual(price))

			tx, err := New(Params{Symbol: symbol, Buy: buy, Sell: sell, Price: price, Quantity: qty("1")})
			require.NoError(t, err)
			assert.Equal(t, models.StatusFilled, tx.BuyOrder().Status())
		})
	}
}

func TestNew_ExecutionPriceBand(t *testing.T) {
	tests := []struct {
		name        string
		price       int64
		expectError bool
	}{
		{"Midpoint", 45000, false},
		{"AtSellPrice", 44000, false},
		{"AtBuyPrice", 46000, false},
		{"BelowBand", 43000, true},
		{"AboveBand", 47000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy := newOrder(t, models.Buy, 46000, "1.0")
			sell := newOrder(t, models.Sell, 44000, "1.0")

			tx, err := New(Params{Symbol: symbol, Buy: buy, Sell: sell, Price: usd(tt.price), Quantity: qty("1.0")})
			if tt.expectError {
				assert.ErrorIs(t, err, models.ErrInvalidArgument)
				assert.Nil(t, tx)
				assert.Equal(t, models.StatusPending, buy.Status())
				assert.Equal(t, models.StatusPending, sell.Status())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StatusFilled, buy.Status())
			assert.Equal(t, models.StatusFilled, sell.Status())
			assert.True(t, tx.TotalValue().Equal(usd(tt.price)))
		})
	}
}

func TestNew_ValidationRejectsWithoutSideEffects(t *testing.T) {
	otherSymbol, err := models.NewOrder(models.OrderParams{
		Symbol: "ETH-USD", Side: models.Sell, Price: usd(100), Quantity: qty("1"),
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		params func(buy, sell *models.Order) Params
	}{
		{"NilOrder", func(buy, sell *models.Order) Params {
			return Params{Symbol: symbol, Buy: buy, Price: usd(100), Quantity: qty("1")}
		}},
		{"SameOrder", func(buy, sell *models.Order) Params {
			return Params{Symbol: symbol, Buy: buy, Sell: buy, Price: usd(100), Quantity: qty("1")}
		}},
		{"SwappedSides", func(buy, sell *models.Order) Params {
			return Params{Symbol: symbol, Buy: sell, Sell: buy, Price: usd(100), Quantity: qty("1")}
		}},
		{"SymbolMismatch", func(buy, sell *models.Order) Params {
			return Params{Symbol: symbol, Buy: buy, Sell: otherSymbol, Price: usd(100), Quantity: qty("1")}
		}},
		{"DeclaredSymbolMismatch", func(buy, sell *models.Order) Params {
			return Params{Symbol: "ETH-USD", Buy: buy, Sell: sell, Price: usd(100), Quantity: qty("1")}
		}},
		{"WrongCurrency", func(buy, sell *models.Order) Params {
			return Params{Symbol: symbol, Buy: buy, Sell: sell, Price: money.NewFromInt(100, "EUR"), Quantity: qty("1")}
		}},
		{"ZeroQuantity", func(buy, sell *models.Order) Params {
			return Params{Symbol: symbol, Buy: buy, Sell: sell, Price: usd(100), Quantity: decimal.Zero}
		}},
		{"QuantityAboveRemaining", func(buy, sell *models.Order) Params {
			return Params{Symbol: symbol, Buy: buy, Sell: sell, Price: usd(100), Quantity: qty("2.5")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy := newOrder(t, models.Buy, 100, "3")
			sell := newOrder(t, models.Sell, 100, "2")

			_, err := New(tt.params(buy, sell))
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
			assert.True(t, buy.ExecutedQuantity().IsZero())
			assert.True(t, sell.ExecutedQuantity().IsZero())
			assert.Equal(t, models.StatusPending, buy.Status())
			assert.Equal(t, models.StatusPending, sell.Status())
		})
	}
}

func TestNew_CancelledOrderIsStateError(t *testing.T) {
	buy := newOrder(t, models.Buy, 100, "1")
	sell := newOrder(t, models.Sell, 100, "1")
	require.NoError(t, sell.Cancel())

	_, err := New(Params{Symbol: symbol, Buy: buy, Sell: sell, Price: usd(100), Quantity: qty("1")})
	assert.ErrorIs(t, err, models.ErrFillCancelled)
	assert.True(t, buy.ExecutedQuantity().IsZero())
}

func TestNew_BuyBelowSellRejected(t *testing.T) {
	buy := newOrder(t, models.Buy, 99, "1")
	sell := newOrder(t, models.Sell, 100, "1")
	_, err := New(Params{Symbol: symbol, Buy: buy, Sell: sell, Price: usd(100), Quantity: qty("1")})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "buy price is less than sell price")
}

func TestNew_PartialThenFullScenario(t *testing.T) {
	buy := newOrder(t, models.Buy, 100, "2.0")
	sellA := newOrder(t, models.Sell, 100, "0.5")
	sellB := newOrder(t, models.Sell, 100, "1.5")
	sellC := newOrder(t, models.Sell, 100, "1.0")

	tx1, err := New(Params{Symbol: symbol, Buy: buy, Sell: sellA, Price: usd(100), Quantity: qty("0.5")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, buy.Status())
	assert.True(t, buy.RemainingQuantity().Equal(qty("1.5")))
	assert.Equal(t, models.StatusFilled, sellA.Status())

	_, err = New(Params{Symbol: symbol, Buy: buy, Sell: sellB, Price: usd(100), Quantity: qty("1.5")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, buy.Status())
	assert.True(t, buy.RemainingQuantity().IsZero())

	_, err = New(Params{Symbol: symbol, Buy: buy, Sell: sellC, Price: usd(100), Quantity: qty("0.1")})
	assert.ErrorIs(t, err, models.ErrAlreadyFilled)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.ErrorIs(t, buy.UpdateExecution(qty("0.1")), models.ErrInvalidState)
	assert.True(t, sellC.ExecutedQuantity().IsZero())

	rec := tx1.Record()
	assert.Equal(t, buy.ID(), rec.BuyOrderID)
	assert.Equal(t, sellA.ID(), rec.SellOrderID)
	assert.Equal(t, symbol, tx1.Symbol())
}

func TestNew_SameOrderPairTradesRepeatedly(t *testing.T) {
	buy := newOrder(t, models.Buy, 100, "3")
	sell := newOrder(t, models.Sell, 100, "3")
	at := time.Now()

	for i := 0; i < 3; i++ {
		_, err := New(Params{Symbol: symbol, Buy: buy, Sell: sell, Price: usd(100), Quantity: qty("1"), CreatedAt: at})
		require.NoError(t, err)
	}
	assert.True(t, buy.ExecutedQuantity().Equal(qty("3")))
	assert.True(t, sell.ExecutedQuantity().Equal(qty("3")))
	assert.Equal(t, models.StatusFilled, sell.Status())
}

func TestProperty_ExecutionsAccumulateToFilled(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// split the order quantity into random positive chunks of hundredths
		chunks := rapid.SliceOfN(rapid.IntRange(1, 500), 1, 20).Draw(t, "chunks")
		total := decimal.Zero
		for _, c := range chunks {
			total = total.Add(decimal.New(int64(c), -2))
		}

		order := newOrder(t, models.Buy, 100, total.String())
		for i, c := range chunks {
			amount := decimal.New(int64(c), -2)
			sell := newOrder(t, models.Sell, 100, amount.String())
			if _, err := New(Params{Symbol: symbol, Buy: order, Sell: sell, Price: usd(100), Quantity: amount}); err != nil {
				t.Fatalf("execution %d: %v", i, err)
			}
			if i < len(chunks)-1 && order.Status() != models.StatusPartial {
				t.Fatalf("execution %d: status %s, want partial", i, order.Status())
			}
		}

		if order.Status() != models.StatusFilled {
			t.Fatalf("status %s, want filled", order.Status())
		}
		if !order.RemainingQuantity().IsZero() || !order.ExecutedQuantity().Equal(total) {
			t.Fatalf("remaining %s, executed %s of %s", order.RemainingQuantity(), order.ExecutedQuantity(), total)
		}
	})
}
