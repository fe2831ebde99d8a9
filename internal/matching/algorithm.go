package matching

import (
	"fmt"

	"github.com/xtrntr/matchengine/internal/book"
)

// Algorithm walks the price levels of both sides and asks the strategy
// to validate the order pairs it finds.
type Algorithm interface {
	FindMatchCandidates(bids, asks *book.PriceLevelManager, s Strategy) []*OrderMatch
}

// TwoPointer keeps one cursor per side, both starting at the best level.
// Bids descend and asks ascend, so the first non-crossing pair ends the
// walk: O(bid levels + ask levels).
type TwoPointer struct{}

func (TwoPointer) FindMatchCandidates(bids, asks *book.PriceLevelManager, s Strategy) []*OrderMatch {
	var out []*OrderMatch
	bc, ac := bids.Cursor(), asks.Cursor()
	for bc.Valid() && ac.Valid() {
		bidLevel, askLevel := bc.Level(), ac.Level()
		if bidLevel.Price().IsLessThan(askLevel.Price()) {
			break
		}

		buy, sell := bidLevel.FirstActiveOrder(), askLevel.FirstActiveOrder()
		// a level waiting for a sweep only moves its own cursor
		if buy == nil || sell == nil {
			if buy == nil {
				bc.Next()
			}
			if sell == nil {
				ac.Next()
			}
			continue
		}

		if m := s.NewCandidate(buy, sell); m != nil {
			out = append(out, m)
		}
		bc.Next()
		ac.Next()
	}
	return out
}

// MatchFinder pairs every bid level with every ask level. It is the
// O(bid levels x ask levels) reference the two-pointer walk is checked against.
type MatchFinder struct{}

func (MatchFinder) FindMatchCandidates(bids, asks *book.PriceLevelManager, s Strategy) []*OrderMatch {
	var out []*OrderMatch
	for bc := bids.Cursor(); bc.Valid(); bc.Next() {
		for ac := asks.Cursor(); ac.Valid(); ac.Next() {
			bidLevel, askLevel := bc.Level(), ac.Level()
			if bidLevel.Price().IsLessThan(askLevel.Price()) {
				continue
			}
			if m := s.NewCandidate(bidLevel.FirstActiveOrder(), askLevel.FirstActiveOrder()); m != nil {
				out = append(out, m)
			}
		}
	}
	return out
}

const (
	AlgorithmTwoPointer = "two-pointer"
	AlgorithmExhaustive = "exhaustive"
)

// ParseAlgorithm resolves a configured algorithm name
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", AlgorithmTwoPointer:
		return TwoPointer{}, nil
	case AlgorithmExhaustive:
		return MatchFinder{}, nil
	}
	return nil, fmt.Errorf("unknown matching algorithm %q", name)
}
