package report

import "rfm-dashboard/internal/models"

var advice = map[string]string{
	"Loyal Customers":   "Offer loyalty rewards, exclusive deals to maintain engagement.",
	"At-Risk Customers": "Send win-back emails, personalized offers to re-engage.",
	"Occasional Buyers": "Provide reminders, offer discounts on related items to boost frequency.",
	"New Customers":     "Welcome offers, guided onboarding to encourage repeat purchases.",
}

const genericAdvice = "Review recent orders and spend for this group and tailor offers to its buying rhythm."

// Recommendations pairs each segment, in summary order, with its marketing advice.
func Recommendations(summaries []models.SegmentSummary) []models.Recommendation {
	out := make([]models.Recommendation, len(summaries))
	for i, s := range summaries {
		text, ok := advice[s.Segment]
		if !ok {
			text = genericAdvice
		}
		out[i] = models.Recommendation{Segment: s.Segment, Color: s.Color, Advice: text}
	}
	return out
}
