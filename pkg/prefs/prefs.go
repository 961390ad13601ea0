// Package prefs persists per-user interface preferences.
package prefs

import (
	"context"

	"advisorai/pkg/domain"
)

// Preferences holds the settings a client restores on login.
type Preferences struct {
	Language domain.Language `json:"language"`
	Theme    domain.Theme    `json:"theme"`
}

// Defaults returns the preferences of a brand-new account.
func Defaults() Preferences {
	return Preferences{
		Language: domain.LangZH,
		Theme:    domain.ThemeDark,
	}
}

// Store saves and loads preferences keyed by user ID. Load returns the
// defaults when the user has never saved any.
type Store interface {
	Save(ctx context.Context, userID string, p Preferences) error
	Load(ctx context.Context, userID string) (Preferences, error)
}

func normalize(p Preferences) Preferences {
	p.Language = domain.NormalizeLanguage(string(p.Language))
	if p.Theme != domain.ThemeLight {
		p.Theme = domain.ThemeDark
	}
	return p
}
