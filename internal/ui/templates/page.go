// Package templates renders the dashboard page.
package templates

import "rfm-dashboard/internal/models"

const defaultTitle = "Customer Segmentation"

// Chart is one image panel on the page.
type Chart struct {
	Title string
	Src   string
}

type Page struct {
	Title           string
	TotalCustomers  string
	TotalRevenue    string
	Charts          []Chart
	Recommendations []models.Recommendation
}

func (p Page) title() string {
	if p.Title == "" {
		return defaultTitle
	}
	return p.Title
}

func badgeStyle(color string) map[string]string {
	return map[string]string{"background-color": color}
}
