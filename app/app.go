package app

import (
	"time"

	"github.com/go-chi/oauth"

	"github.com/mbolis/prom-tracker/chart"
	"github.com/mbolis/prom-tracker/config"
	"github.com/mbolis/prom-tracker/store"
)

type App struct {
	store.Store
	*oauth.BearerServer
	config.Config

	// Palette colours chart series.
	Palette *chart.Palette
	// Now is the clock submissions are dated with.
	Now func() time.Time
}

// New wires an App with the real clock and a time-seeded palette.
func New(s store.Store, bearerServer *oauth.BearerServer, cfg config.Config) App {
	return App{
		Store:        s,
		BearerServer: bearerServer,
		Config:       cfg,
		Palette:      chart.NewPalette(nil),
		Now:          time.Now,
	}
}
