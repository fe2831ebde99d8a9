package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xtrntr/matchengine/internal/models"
)

func TestPriority_IsPriceBetter(t *testing.T) {
	tests := []struct {
		name string
		calc PriorityCalculator
		a, b int64
		want bool
	}{
		{"BidHigherWins", BidPriority{}, 101, 100, true},
		{"BidLowerLoses", BidPriority{}, 99, 100, false},
		{"BidEqualIsNotBetter", BidPriority{}, 100, 100, false},
		{"AskLowerWins", AskPriority{}, 99, 100, true},
		{"AskHigherLoses", AskPriority{}, 101, 100, false},
		{"AskEqualIsNotBetter", AskPriority{}, 100, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.calc.IsPriceBetter(usd(tt.a), usd(tt.b)))
		})
	}
}

func TestPriority_IsHigherPriority(t *testing.T) {
	early := newOrder(t, models.Buy, 100, "1", t0)
	late := newOrder(t, models.Buy, 100, "1", t0.Add(time.Second))
	better := newOrder(t, models.Buy, 101, "1", t0.Add(time.Hour))
	tie := newOrder(t, models.Buy, 100, "1", t0)

	calc := BidPriority{}
	assert.True(t, calc.IsHigherPriority(early, late))
	assert.False(t, calc.IsHigherPriority(late, early))
	assert.True(t, calc.IsHigherPriority(better, early), "price beats time")
	assert.False(t, calc.IsHigherPriority(early, tie), "equal timestamps are equal priority")
	assert.False(t, calc.IsHigherPriority(tie, early))

	askEarly := newOrder(t, models.Sell, 100, "1", t0.Add(time.Second))
	askCheaper := newOrder(t, models.Sell, 99, "1", t0.Add(time.Minute))
	assert.True(t, AskPriority{}.IsHigherPriority(askCheaper, askEarly))
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, models.Buy, PriorityFor(models.Buy).Side())
	assert.Equal(t, models.Sell, PriorityFor(models.Sell).Side())
}
