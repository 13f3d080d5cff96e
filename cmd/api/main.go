package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/config"
	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/server"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Warnf("Could not load .env file: %v", err)
	}

	cfg, err := config.NewWarehouse()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %v", err)
	}
	defer dbpool.Close()

	tables := database.Tables{Schema: cfg.DatasetID, Projects: cfg.TableID}
	// the read API never merges, so the timezone is irrelevant here
	store := database.NewStore(dbpool, tables, time.UTC, log)
	projects := database.NewProjectReader(dbpool, tables)

	router := server.SetupRoutes(server.NewProjectService(projects, store, log))

	log.Infof("Server starting on port %s", cfg.APIPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.APIPort), router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
