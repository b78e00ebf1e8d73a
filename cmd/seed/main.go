package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/auth"
	"github.com/xtrntr/carauction/internal/config"
	"github.com/xtrntr/carauction/internal/db"
	"github.com/xtrntr/carauction/internal/models"
)

const (
	adminEmail = "admin@carauction.local"
	password   = "password123"
	buyers     = 5
	vehicles   = 6
)

var auctionTypes = []models.AuctionType{models.TypeOpen, models.TypeSealed, models.TypeIndicator, models.TypeAnonymous}

// Seed the database with an administrator, a few buyers and draft auctions
func main() {
	ctx := context.Background()
	logger := logrus.New()

	cfg, err := config.NewPostgresConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if err := db.MigrateUp(cfg.Conn); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	database, err := db.NewDB(ctx, cfg.Conn)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close(ctx)

	// First check if we already seeded
	if _, err := database.GetUserByEmail(ctx, adminEmail); err == nil {
		fmt.Println("Database already has an administrator. No need to seed.")
		os.Exit(0)
	} else if !errors.Is(err, auctionerrors.ErrNotFound) {
		logger.WithError(err).Fatal("Failed to check users")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.WithError(err).Fatal("Failed to hash password")
	}

	admin, err := database.CreateUser(ctx, models.User{
		Email:        adminEmail,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Status:       models.UserActive,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create admin")
	}

	for i := 1; i <= buyers; i++ {
		u, err := database.CreateUser(ctx, models.User{
			Email:        fmt.Sprintf("buyer%d@carauction.local", i),
			Name:         gofakeit.Name(),
			PasswordHash: hash,
			Role:         models.RoleBuyer,
			Status:       models.UserActive,
		})
		if err != nil {
			logger.WithError(err).Fatalf("Failed to create buyer %d", i)
		}
		logger.WithField("email", u.Email).Info("Created buyer")
	}

	start := time.Now().Add(10 * time.Minute).Truncate(time.Minute)
	for i := 0; i < vehicles; i++ {
		v, err := database.CreateVehicle(ctx, models.Vehicle{
			Name:        gofakeit.CarMaker() + " " + gofakeit.CarModel(),
			Description: gofakeit.Sentence(12),
			Specifications: models.Specifications{
				Year:         gofakeit.IntRange(2008, 2024),
				Mileage:      fmt.Sprintf("%d km", gofakeit.IntRange(5000, 220000)),
				Fuel:         gofakeit.CarFuelType(),
				Transmission: gofakeit.CarTransmissionType(),
				Color:        gofakeit.Color(),
			},
			Images:      []string{},
			CreatedByID: admin.ID,
		})
		if err != nil {
			logger.WithError(err).Fatalf("Failed to create vehicle %d", i)
		}

		startingPrice := decimal.NewFromInt(int64(gofakeit.IntRange(20, 400)) * 100)
		a, err := database.CreateAuction(ctx, models.Auction{
			VehicleID:        v.ID,
			CreatedByID:      admin.ID,
			Status:           models.StatusDraft,
			Type:             auctionTypes[i%len(auctionTypes)],
			Currency:         "EUR",
			StartTime:        start.Add(time.Duration(i) * time.Hour),
			EndTime:          start.Add(time.Duration(i+24) * time.Hour),
			StartingPrice:    decimal.NewNullDecimal(startingPrice),
			ReservePrice:     decimal.NewNullDecimal(startingPrice.Mul(decimal.NewFromFloat(1.5))),
			ShowReservePrice: i%2 == 0,
			ShowBidCount:     true,
		})
		if err != nil {
			logger.WithError(err).Fatalf("Failed to create auction for vehicle %s", v.ID)
		}
		logger.WithFields(logrus.Fields{
			"auction": a.ID,
			"vehicle": v.Name,
			"type":    a.Type,
		}).Info("Created draft auction")
	}

	fmt.Printf("Successfully seeded the database! Log in as %s / %s\n", adminEmail, password)
}
