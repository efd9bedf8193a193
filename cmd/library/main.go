package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/appdotbuilder/perpustakaan-online/pkg/api"
	"github.com/appdotbuilder/perpustakaan-online/pkg/borrowing"
	"github.com/appdotbuilder/perpustakaan-online/pkg/catalog"
	"github.com/appdotbuilder/perpustakaan-online/pkg/config"
	"github.com/appdotbuilder/perpustakaan-online/pkg/dashboard"
	"github.com/appdotbuilder/perpustakaan-online/pkg/database"
	"github.com/appdotbuilder/perpustakaan-online/pkg/seed"
	"github.com/appdotbuilder/perpustakaan-online/pkg/users"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	log.Println("Starting library service...")

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
	log.Println("Database connected and migrated")

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	svc := newServices(cfg, db, logger)

	if cfg.SeedData {
		if err := seed.Run(context.Background(), db, svc.Loans); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
	}

	hostname, _ := os.Hostname()
	server := gin.Default()
	api.NewHandler(db, svc, logger, hostname).RegisterRoutes(server)

	log.Printf("Library service starting on :%s (TZ %s)", cfg.LibraryPort, cfg.Location)
	if err := server.Run(":" + cfg.LibraryPort); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func newServices(cfg *config.Config, db *gorm.DB, logger *slog.Logger) api.Services {
	loans := borrowing.NewService(db,
		borrowing.WithFinePerDay(cfg.FinePerDay),
		borrowing.WithLoanDays(cfg.LoanDays),
		borrowing.WithClock(cfg.Now),
		borrowing.WithLogger(logger),
	)
	return api.Services{
		Books:     catalog.NewStore(db, catalog.WithClock(cfg.Now), catalog.WithLogger(logger)),
		Loans:     loans,
		Users:     users.NewStore(db, logger),
		Dashboard: dashboard.NewService(db, loans),
	}
}
