package market

import (
	"context"
	"sort"
)

// defaultETAms stands in for a bid that omits its estimated completion
// time or declares it as zero, for scoring only
const defaultETAms int64 = 1000

// neutralReputation is the prior for bidders with no reputation snapshot
const neutralReputation = 0.5

// BidSelector picks winners from a bid set. The deterministic
// WeightedSelector is the default; an external (e.g. LLM-driven)
// implementation can be plugged in behind the same interface.
type BidSelector interface {
	SelectBids(ctx context.Context, rfp *RFP, bids []*Bid) ([]*BidEvaluation, error)
}

// EvaluateBids scores every bid on an RFP and returns the evaluations
// sorted best-first. Weights are pass-through: the engine neither
// normalizes nor validates them, since the result is only used for
// ranking. An RFP with no bids evaluates to an empty list.
//
// Per bid: priceScore = minPrice/price (cheapest bid scores 1.0),
// speedScore = maxEta/eta (fastest bid scores highest), reputation is the
// snapshot taken at submission or the neutral prior.
func (e *Engine) EvaluateBids(ctx context.Context, rfpID string, priceWeight, speedWeight, reputationWeight float64) ([]*BidEvaluation, error) {
	bids, err := e.store.ListBids(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	return scoreBids(bids, priceWeight, speedWeight, reputationWeight), nil
}

func scoreBids(bids []*Bid, priceWeight, speedWeight, reputationWeight float64) []*BidEvaluation {
	if len(bids) == 0 {
		return []*BidEvaluation{}
	}

	minPrice := bids[0].Price
	maxEta := bidETA(bids[0])
	for _, b := range bids[1:] {
		if b.Price < minPrice {
			minPrice = b.Price
		}
		if eta := bidETA(b); eta > maxEta {
			maxEta = eta
		}
	}

	evaluations := make([]*BidEvaluation, 0, len(bids))
	for _, b := range bids {
		priceScore := 0.0
		if b.Price > 0 {
			priceScore = minPrice / b.Price
		}

		speedScore := 0.0
		if eta := bidETA(b); eta > 0 {
			speedScore = float64(maxEta) / float64(eta)
		}

		reputationScore := neutralReputation
		if b.Reputation != nil {
			reputationScore = *b.Reputation
		}

		evaluations = append(evaluations, &BidEvaluation{
			BidID:           b.ID,
			Score:           priceScore*priceWeight + speedScore*speedWeight + reputationScore*reputationWeight,
			PriceScore:      priceScore,
			SpeedScore:      speedScore,
			ReputationScore: reputationScore,
		})
	}

	sort.SliceStable(evaluations, func(i, j int) bool {
		return evaluations[i].Score > evaluations[j].Score
	})
	return evaluations
}

// bidETA folds a missing or zero estimate into the default, so an
// explicit 0ms claim scores like an omitted one rather than worst.
func bidETA(b *Bid) int64 {
	if b.ETAms != nil && *b.ETAms != 0 {
		return *b.ETAms
	}
	return defaultETAms
}

// WeightedSelector is the default BidSelector: deterministic weighted
// scoring with the top-ranked bid marked selected
type WeightedSelector struct {
	PriceWeight      float64
	SpeedWeight      float64
	ReputationWeight float64
}

// DefaultWeightedSelector returns a selector with the stock 0.4/0.3/0.3
// weight split
func DefaultWeightedSelector() *WeightedSelector {
	return &WeightedSelector{PriceWeight: 0.4, SpeedWeight: 0.3, ReputationWeight: 0.3}
}

// SelectBids implements BidSelector
func (s *WeightedSelector) SelectBids(_ context.Context, _ *RFP, bids []*Bid) ([]*BidEvaluation, error) {
	evaluations := scoreBids(bids, s.PriceWeight, s.SpeedWeight, s.ReputationWeight)
	if len(evaluations) > 0 {
		evaluations[0].Selected = true
	}
	return evaluations, nil
}
