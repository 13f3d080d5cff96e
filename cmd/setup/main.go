package main

import (
	"context"
	"os"

	"github.com/geo-ambiental/seia-sync/internal/config"
	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.Info("Starting database setup...")

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
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	schema := database.NewSchema(dbpool, database.Tables{Schema: cfg.DatasetID, Projects: cfg.TableID})

	log.Infof("Creating schema %s...", cfg.DatasetID)
	if err := schema.CreateSchema(ctx); err != nil {
		log.Fatalf("Error creating schema: %v", err)
	}

	log.Info("Creating file_records table...")
	if err := schema.CreateFileRecordsTable(ctx); err != nil {
		log.Fatalf("Error creating file_records table: %v", err)
	}
	log.Info("file_records table created successfully.")

	log.Infof("Creating %s table...", cfg.TableID)
	if err := schema.CreateProjectsTable(ctx); err != nil {
		log.Fatalf("Error creating %s table: %v", cfg.TableID, err)
	}
	if err := schema.CreateProjectIndexes(ctx); err != nil {
		log.Fatalf("Error creating %s indexes: %v", cfg.TableID, err)
	}
	log.Infof("%s table created successfully.", cfg.TableID)

	log.Info("Database setup finished successfully.")
}
