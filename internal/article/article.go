package article

import "time"

// Article is a single entry recovered from an account feed.
type Article struct {
	Title       string
	URL         string // absolute
	PublishedAt time.Time
	// EngagementScore is nil when the feed carries no engagement metric.
	EngagementScore *float64
	Description     string
	Tags            []string
}

// PublishedDate returns the publication date as YYYY-MM-DD.
func (a Article) PublishedDate() string {
	return a.PublishedAt.Format("2006-01-02")
}
