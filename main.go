package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mbolis/prom-tracker/app"
	"github.com/mbolis/prom-tracker/config"
	"github.com/mbolis/prom-tracker/database"
	"github.com/mbolis/prom-tracker/database/mongo"
	"github.com/mbolis/prom-tracker/httpx"
	"github.com/mbolis/prom-tracker/log"
	"github.com/mbolis/prom-tracker/routes"
	"github.com/mbolis/prom-tracker/store"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer s.Close()

	if cfg.AdminUser != "" {
		err = s.EnsureUser(context.Background(), cfg.AdminUser, cfg.AdminPassword)
		if err != nil {
			log.Fatal("main.db.ensure_user:", err)
		}
		log.Infof("Operator account %q is ready", cfg.AdminUser)
	}

	bearerServer := httpx.NewBearerServer(s, cfg)

	handler := routes.Wire(app.New(s, bearerServer, cfg))

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.IsMongo() {
		log.Info("Using MongoDB store")
		return mongo.Open(context.Background(), cfg.DBUrl)
	}

	db, err := database.Open(cfg.DBUrl)
	if err != nil {
		return nil, err
	}
	log.Infof("Using SQLite store at %s", cfg.DBUrl)
	return database.NewStore(db), nil
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
