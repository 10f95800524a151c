package server

import (
	"context"
	"errors"

	"pathlet/internal/chat"
	"pathlet/internal/insights"
	"pathlet/internal/readings"
)

// LatestInsights feeds chat from the user's most recent reading.
func LatestInsights(svc *readings.Service) chat.InsightsSource {
	return func(ctx context.Context, userID string) (*insights.Insights, error) {
		reading, err := svc.Latest(ctx, userID)
		if errors.Is(err, readings.ErrReadingNotFound) {
			return nil, chat.ErrNoInsights
		}
		if err != nil {
			return nil, err
		}
		return &reading.Insights, nil
	}
}
