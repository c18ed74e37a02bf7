package home

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PreferenceStore remembers Preferences per owner (a web session or a chat).
// Unknown owners load as the zero value.
type PreferenceStore interface {
	LoadPreferences(ctx context.Context, owner string) (Preferences, error)
	SavePreferences(ctx context.Context, owner string, p Preferences) error
}

const saveTimeout = 5 * time.Second

// RememberPreferences saves the preferences of c every time they change.
// The returned func stops saving.
func RememberPreferences(c *Controller, store PreferenceStore, owner string, log zerolog.Logger) func() {
	last := c.State().Preferences()
	return c.Subscribe(func(s State) {
		p := s.Preferences()
		if p == last {
			return
		}
		last = p

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := store.SavePreferences(ctx, owner, p); err != nil {
			log.Error().Err(err).Str("owner", owner).Msg("save preferences failed")
		}
	})
}
