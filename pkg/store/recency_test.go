package store

import (
	"testing"
	"time"

	"advisorai/pkg/domain"
)

func TestGroupByRecency(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)
	mk := func(id string, updated time.Time) domain.Conversation {
		return domain.Conversation{ID: id, UpdatedAt: updated}
	}

	convs := []domain.Conversation{
		mk("now", now),
		mk("this-morning", time.Date(2025, 3, 10, 0, 0, 0, 0, time.Local)),
		mk("yesterday-night", time.Date(2025, 3, 9, 23, 59, 0, 0, time.Local)),
		mk("25h-ago", now.Add(-25*time.Hour)),
		mk("last-week", now.Add(-7*24*time.Hour)),
	}
	b := GroupByRecency(convs, now)

	wantIDs := func(got []domain.Conversation, want ...string) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("bucket = %v, want %v", ids(got), want)
		}
		for i, id := range want {
			if got[i].ID != id {
				t.Fatalf("bucket = %v, want %v", ids(got), want)
			}
		}
	}
	wantIDs(b.Today, "now", "this-morning")
	wantIDs(b.Yesterday, "yesterday-night", "25h-ago")
	wantIDs(b.Earlier, "last-week")
}

func TestGroupByRecencyMigratesOverTime(t *testing.T) {
	updated := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	conv := []domain.Conversation{{ID: "c", UpdatedAt: updated}}

	sameDay := GroupByRecency(conv, updated.Add(2*time.Hour))
	if len(sameDay.Today) != 1 {
		t.Fatalf("same day: %+v", sameDay)
	}
	nextDay := GroupByRecency(conv, updated.Add(24*time.Hour))
	if len(nextDay.Yesterday) != 1 {
		t.Fatalf("next day: %+v", nextDay)
	}
	twoDays := GroupByRecency(conv, updated.Add(48*time.Hour))
	if len(twoDays.Earlier) != 1 {
		t.Fatalf("two days on: %+v", twoDays)
	}
}

func ids(convs []domain.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}
