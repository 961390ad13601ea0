package store

import (
	"time"

	"advisorai/pkg/domain"
)

// Buckets partitions conversations by how recently they were updated.
type Buckets struct {
	Today     []domain.Conversation `json:"today"`
	Yesterday []domain.Conversation `json:"yesterday"`
	Earlier   []domain.Conversation `json:"earlier"`
}

// GroupByRecency partitions conversations against local-day boundaries
// computed from now. The grouping is derived on every read, never stored,
// so a conversation migrates buckets as time passes. Relative order within
// a bucket follows the input order.
func GroupByRecency(convs []domain.Conversation, now time.Time) Buckets {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.Add(-24 * time.Hour)

	var b Buckets
	for _, c := range convs {
		updated := c.UpdatedAt.In(now.Location())
		switch {
		case !updated.Before(todayStart):
			b.Today = append(b.Today, c)
		case !updated.Before(yesterdayStart):
			b.Yesterday = append(b.Yesterday, c)
		default:
			b.Earlier = append(b.Earlier, c)
		}
	}
	return b
}
