package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Reputation blend: quality outweighs volume 60/40, and the volume bonus
// saturates at 100 ratings.
const (
	reputationQualityWeight = 0.6
	reputationVolumeWeight  = 0.4
	reputationVolumeCap     = 100.0
)

// RecordRatingParams are the caller-supplied fields for a new rating
type RecordRatingParams struct {
	ProviderID    string
	AssignmentID  string
	ConsumerID    string
	Rating        float64
	DataQuality   float64
	ResponseTime  float64
	ValueForPrice float64
	ReviewText    *string
}

// RecordRating stores a rating for a registered provider and recomputes
// the provider's reputation aggregates. The append and the recompute run
// under the provider's lock so concurrent ratings cannot lose updates.
func (e *Engine) RecordRating(ctx context.Context, p RecordRatingParams) (*ProviderRating, error) {
	for _, score := range []struct {
		name  string
		value float64
	}{
		{"rating", p.Rating},
		{"data_quality", p.DataQuality},
		{"response_time", p.ResponseTime},
		{"value_for_price", p.ValueForPrice},
	} {
		if score.value < 1.0 || score.value > 5.0 {
			return nil, fmt.Errorf("%s %.2f outside [1.0, 5.0]: %w", score.name, score.value, ErrValidation)
		}
	}

	if e.agents == nil || !e.agents.KnownAgent(p.ProviderID) {
		return nil, fmt.Errorf("provider %s: %w", p.ProviderID, ErrNotFound)
	}

	rating := &ProviderRating{
		ID:            newID("rating"),
		AssignmentID:  p.AssignmentID,
		ConsumerID:    p.ConsumerID,
		ProviderID:    p.ProviderID,
		Rating:        p.Rating,
		DataQuality:   p.DataQuality,
		ResponseTime:  p.ResponseTime,
		ValueForPrice: p.ValueForPrice,
		ReviewText:    p.ReviewText,
		CreatedAt:     time.Now().UTC(),
	}

	unlock := e.providerLocks.lock(p.ProviderID)
	defer unlock()

	if err := e.store.InsertRating(ctx, rating); err != nil {
		return nil, fmt.Errorf("record rating: %w", err)
	}

	ratings, err := e.store.ListRatings(ctx, p.ProviderID)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, r := range ratings {
		total += r.Rating
	}
	avg := total / float64(len(ratings))

	rec := &ReputationRecord{
		ProviderID:    p.ProviderID,
		TotalRatings:  len(ratings),
		AverageRating: avg,
		Score:         blendReputation(avg, len(ratings)),
	}
	if err := e.store.UpsertReputation(ctx, rec); err != nil {
		return nil, fmt.Errorf("record rating: %w", err)
	}

	return rating, nil
}

// blendReputation maps a rating average and count to the [0,1] score
func blendReputation(averageRating float64, count int) float64 {
	quality := averageRating / 5.0
	volume := float64(count) / reputationVolumeCap
	if volume > 1.0 {
		volume = 1.0
	}
	return quality*reputationQualityWeight + volume*reputationVolumeWeight
}

// GetReputation returns a provider's reputation summary including the
// per-sub-metric averages. A registered provider with no ratings yet gets
// a zeroed summary rather than ErrNotFound.
func (e *Engine) GetReputation(ctx context.Context, providerID string) (*ReputationSummary, error) {
	if e.agents == nil || !e.agents.KnownAgent(providerID) {
		return nil, fmt.Errorf("provider %s: %w", providerID, ErrNotFound)
	}

	summary := &ReputationSummary{ProviderID: providerID}

	rec, err := e.store.GetReputation(ctx, providerID)
	switch {
	case err == nil:
		summary.Score = rec.Score
		summary.TotalRatings = rec.TotalRatings
		summary.AverageRating = rec.AverageRating
	case !errors.Is(err, ErrNotFound):
		// No record yet is expected; anything else is a real store failure.
		return nil, err
	}

	ratings, err := e.store.ListRatings(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if len(ratings) > 0 {
		var quality, response, value float64
		for _, r := range ratings {
			quality += r.DataQuality
			response += r.ResponseTime
			value += r.ValueForPrice
		}
		n := float64(len(ratings))
		summary.Breakdown.DataQuality = quality / n
		summary.Breakdown.ResponseTime = response / n
		summary.Breakdown.ValueForPrice = value / n
	}

	return summary, nil
}

// GetRatings returns a provider's most recent ratings, newest first.
// limit <= 0 falls back to 10.
func (e *Engine) GetRatings(ctx context.Context, providerID string, limit int) ([]*ProviderRating, error) {
	if e.agents == nil || !e.agents.KnownAgent(providerID) {
		return nil, fmt.Errorf("provider %s: %w", providerID, ErrNotFound)
	}
	if limit <= 0 {
		limit = 10
	}

	ratings, err := e.store.ListRatings(ctx, providerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ratings, func(i, j int) bool {
		return ratings[i].CreatedAt.After(ratings[j].CreatedAt)
	})
	if len(ratings) > limit {
		ratings = ratings[:limit]
	}
	return ratings, nil
}
