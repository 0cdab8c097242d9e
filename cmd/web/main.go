package main

import (
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/AdamBeresnev/kart-cup/internal/config"
	"github.com/AdamBeresnev/kart-cup/internal/db"
	"github.com/AdamBeresnev/kart-cup/internal/middleware"
	"github.com/AdamBeresnev/kart-cup/internal/service"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	database := db.InitDB(cfg.DatabaseDSN)
	defer database.Close()

	if err := db.RunMigrations(database.DB); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	middleware.InitAuth()

	sessionManager := scs.New()
	sessionManager.Lifetime = 24 * time.Hour
	sessionManager.Store = sqlite3store.New(database.DB)

	locks := service.NewStageLocks()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	router := newRouter(sessionManager, database, cfg, locks, rng)

	log.Println("Server starting on", cfg.ServerAddr)
	if err := http.ListenAndServe(cfg.ServerAddr, router); err != nil {
		log.Fatal(err)
	}
}
