package services

import (
	"github.com/yungbote/brandpulse-backend/internal/analytics"
	"github.com/yungbote/brandpulse-backend/internal/platform/chart"
)

// VisibilityChart renders the per-provider mention rate.
func VisibilityChart(v *analytics.VisibilityView) ([]byte, error) {
	var bars []chart.Bar
	title := "Mention rate"
	if v != nil {
		if v.Brand != "" {
			title = v.Brand + " mention rate"
		}
		for _, p := range v.Providers {
			bars = append(bars, chart.Bar{Label: p.Provider, Value: p.MentionRate})
		}
	}
	return chart.BarPNG(bars, chart.Options{Title: title})
}
