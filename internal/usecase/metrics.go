package usecase

import "context"

// LabelSummary aggregates stored predictions for one class.
type LabelSummary struct {
	Class             string  `json:"class"`
	Label             string  `json:"label"`
	Count             int64   `json:"count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// MetricsSummary represents aggregated prediction insights.
type MetricsSummary struct {
	TotalPredictions  int64          `json:"total_predictions"`
	AverageConfidence float64        `json:"average_confidence"`
	Labels            []LabelSummary `json:"labels"`
}

// GetMetricsSummary aggregates prediction metrics from persisted logs.
func (uc *PredictionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}

	rows, err := uc.repo.AggregateByLabel(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{Labels: make([]LabelSummary, 0, len(rows))}
	var weighted float64
	for _, row := range rows {
		summary.TotalPredictions += row.Count
		weighted += row.AverageConfidence * float64(row.Count)
		summary.Labels = append(summary.Labels, LabelSummary{
			Class:             row.Class,
			Label:             row.Label,
			Count:             row.Count,
			AverageConfidence: row.AverageConfidence,
		})
	}

	if summary.TotalPredictions > 0 {
		summary.AverageConfidence = weighted / float64(summary.TotalPredictions)
	}

	return summary, nil
}
