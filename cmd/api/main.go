package main

import (
	"context"
	"log"

	"narrate-backend/internal/bootstrap"
	"narrate-backend/internal/shared/config"
	"narrate-backend/internal/shared/server"
	"narrate-backend/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	if app.DB != nil {
		if err := db.RunMigrations(context.Background(), app.DB); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	}

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s env=%s queue=%t redis=%t", addr, cfg.Env, app.Queue != nil, app.Redis != nil)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
