package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/store"
)

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		user.Email, user.Name, user.PasswordHash, user.Role, user.Status))
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return nil, fmt.Errorf("%w: email %s is already registered", auctionerrors.ErrInvalidInput, user.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", strings.TrimSpace(email)))
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return u, nil
}

const vehicleSelect = `
	SELECT v.id, v.name, v.description, v.specifications, v.images, v.created_by_id, v.created_at, a.id, a.status
	FROM vehicles v LEFT JOIN auctions a ON a.vehicle_id = v.id`

func scanVehicle(row pgx.Row) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(&v.ID, &v.Name, &v.Description, &v.Specifications, &v.Images, &v.CreatedByID, &v.CreatedAt,
		&v.AuctionID, &v.AuctionStatus)
	if err != nil {
		return nil, err
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	return v, nil
}

// CreateVehicle inserts a new vehicle
func (db *DB) CreateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	if v.Images == nil {
		v.Images = []string{}
	}
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO vehicles (name, description, specifications, images, created_by_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, v.Name, v.Description, v.Specifications, v.Images, v.CreatedByID).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}
	return db.GetVehicle(ctx, id)
}

// UpdateVehicle rewrites the descriptive fields of a vehicle
func (db *DB) UpdateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	if err := checkID("vehicle", v.ID); err != nil {
		return nil, err
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE vehicles SET name = $2, description = $3, specifications = $4, images = $5
		WHERE id = $1
	`, v.ID, v.Name, v.Description, v.Specifications, v.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to update vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: vehicle %s", auctionerrors.ErrNotFound, v.ID)
	}
	return db.GetVehicle(ctx, v.ID)
}

// DeleteVehicle removes a vehicle that was never put up for auction
func (db *DB) DeleteVehicle(ctx context.Context, id string) error {
	if err := checkID("vehicle", id); err != nil {
		return err
	}
	tag, err := db.Pool.Exec(ctx, "DELETE FROM vehicles WHERE id = $1", id)
	if err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("%w: vehicle %s has an auction", auctionerrors.ErrInvalidInput, id)
		}
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vehicle %s", auctionerrors.ErrNotFound, id)
	}
	return nil
}

// GetVehicle retrieves a vehicle with its auction reference
func (db *DB) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	if err := checkID("vehicle", id); err != nil {
		return nil, err
	}
	v, err := scanVehicle(db.Pool.QueryRow(ctx, vehicleSelect+" WHERE v.id = $1", id))
	if err != nil {
		return nil, notFound(err, "vehicle", id)
	}
	return v, nil
}

// ListVehicles retrieves the most recently created vehicles
func (db *DB) ListVehicles(ctx context.Context, limit int) ([]models.Vehicle, error) {
	rows, err := db.Pool.Query(ctx, vehicleSelect+" ORDER BY v.created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// CreateAuction inserts a new auction
func (db *DB) CreateAuction(ctx context.Context, a models.Auction) (*models.Auction, error) {
	if err := checkID("vehicle", a.VehicleID); err != nil {
		return nil, err
	}
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO auctions (vehicle_id, created_by_id, status, auction_type, currency, start_time, end_time,
			starting_price, reserve_price, show_reserve_price, show_bid_count, buy_now_enabled, buy_now_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, a.VehicleID, a.CreatedByID, a.Status, a.Type, a.Currency, a.StartTime, a.EndTime,
		a.StartingPrice, a.ReservePrice, a.ShowReservePrice, a.ShowBidCount, a.BuyNowEnabled, a.BuyNowPrice).Scan(&id)
	if err != nil {
		switch pgErrorCode(err) {
		case codeUniqueViolation:
			return nil, fmt.Errorf("%w: vehicle %s already has an auction", auctionerrors.ErrInvalidInput, a.VehicleID)
		case codeForeignKeyViolation:
			return nil, fmt.Errorf("%w: vehicle %s", auctionerrors.ErrNotFound, a.VehicleID)
		}
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	return db.GetAuction(ctx, id)
}

// UpdateDraftAuction rewrites the editable fields of a DRAFT auction
func (db *DB) UpdateDraftAuction(ctx context.Context, a models.Auction) (*models.Auction, error) {
	if err := checkID("auction", a.ID); err != nil {
		return nil, err
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE auctions SET auction_type = $3, currency = $4, start_time = $5, end_time = $6,
			starting_price = $7, reserve_price = $8, show_reserve_price = $9, show_bid_count = $10,
			buy_now_enabled = $11, buy_now_price = $12, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, a.ID, models.StatusDraft, a.Type, a.Currency, a.StartTime, a.EndTime,
		a.StartingPrice, a.ReservePrice, a.ShowReservePrice, a.ShowBidCount, a.BuyNowEnabled, a.BuyNowPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: auction %s is no longer %s", auctionerrors.ErrConflict, a.ID, models.StatusDraft)
	}
	return db.GetAuction(ctx, a.ID)
}

// ListAuctions retrieves auctions newest first, optionally narrowed to some statuses
func (db *DB) ListAuctions(ctx context.Context, filter store.AuctionFilter) ([]models.Auction, error) {
	var statuses []string
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, err := db.Pool.Query(ctx, "SELECT "+auctionColumns+auctionFrom+`
		WHERE ($1::text[] IS NULL OR a.status = ANY($1))
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`, statuses, filter.Limit, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get auctions: %w", err)
	}
	return collectAuctions(rows)
}

// ListBids retrieves every bid of an auction, highest first
func (db *DB) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if err := checkID("auction", auctionID); err != nil {
		return nil, err
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT b.id, b.auction_id, b.user_id, b.amount, b.is_buy_now, b.created_at, u.name
		FROM bids b JOIN users u ON u.id = b.user_id
		WHERE b.auction_id = $1
		ORDER BY b.amount DESC, b.created_at ASC
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	return collectBids(rows)
}

// AuctionsBidOn reports which of auctionIDs the user placed a bid on
func (db *DB) AuctionsBidOn(ctx context.Context, userID string, auctionIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(auctionIDs) == 0 {
		return result, nil
	}

	rows, err := db.Pool.Query(ctx,
		"SELECT DISTINCT auction_id FROM bids WHERE user_id = $1 AND auction_id = ANY($2::uuid[])",
		userID, auctionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participation: %w", err)
		}
		result[id] = true
	}
	return result, rows.Err()
}

// BidsByUser retrieves the bids of a user, newest first
func (db *DB) BidsByUser(ctx context.Context, userID string, page store.Page) ([]models.Bid, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT b.id, b.auction_id, b.user_id, b.amount, b.is_buy_now, b.created_at, v.name, a.status
		FROM bids b
		JOIN auctions a ON a.id = b.auction_id
		JOIN vehicles v ON v.id = a.vehicle_id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get user bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.IsBuyNow, &b.CreatedAt,
			&b.VehicleName, &b.AuctionStatus); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// WonAuctions retrieves the ended or archived auctions a user won
func (db *DB) WonAuctions(ctx context.Context, userID string, page store.Page) ([]models.Auction, error) {
	rows, err := db.Pool.Query(ctx, "SELECT "+auctionColumns+auctionFrom+`
		WHERE a.winner_id = $1 AND a.status IN ('ENDED', 'ARCHIVED')
		ORDER BY a.end_time DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get won auctions: %w", err)
	}
	return collectAuctions(rows)
}

// ListNotifications retrieves the latest notifications of a user
func (db *DB) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, type, title, message, data, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead marks one notification of the user as read
func (db *DB) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := checkID("notification", id); err != nil {
		return err
	}
	tag, err := db.Pool.Exec(ctx, "UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: notification %s", auctionerrors.ErrNotFound, id)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user as read
func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := db.Pool.Exec(ctx, "UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE", userID)
	if err != nil {
		return fmt.Errorf("failed to update notifications: %w", err)
	}
	return nil
}

// AppendAudit stores one audit record
func (db *DB) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	var userID *string
	if entry.UserID != "" {
		userID = &entry.UserID
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO audit_log (action, user_id, target_id, metadata, ip)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.Action, userID, entry.TargetID, entry.Metadata, entry.IP)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

