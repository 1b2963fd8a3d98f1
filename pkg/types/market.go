package types

import "time"

// Listing is a marketplace catalog entry. Listings only exist for URLs
// that passed classifier screening at creation time.
type Listing struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}
