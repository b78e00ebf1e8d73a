package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/store"
)

const (
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeInvalidText          = "22P02"

	maxTxAttempts = 3
)

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	queries
	Pool *pgxpool.Pool
}

var (
	_ store.Store   = (*DB)(nil)
	_ store.Catalog = (*DB)(nil)
)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: database ping: %v", auctionerrors.ErrUnavailable, err)
	}

	return &DB{queries: queries{q: pool}, Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// InTx runs fn in a serializable transaction. Serialization failures are retried
// and reported as a conflict once the attempts are exhausted.
func (db *DB) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = db.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w: transaction retried %d times: %v", auctionerrors.ErrConflict, maxTxAttempts, err)
}

func (db *DB) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", auctionerrors.ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isSerializationFailure(err error) bool {
	return err != nil && pgErrorCode(err) == codeSerializationFailure
}

// queries implements store.Tx on top of the pool or a transaction
type queries struct {
	q querier
}

const auctionColumns = `a.id, a.vehicle_id, a.created_by_id, a.status, a.auction_type, a.currency,
	a.start_time, a.end_time, a.starting_price, a.reserve_price, a.show_reserve_price, a.show_bid_count,
	a.buy_now_enabled, a.buy_now_price, a.winner_id, a.final_price, a.created_at, a.updated_at,
	v.name, (SELECT COUNT(*) FROM bids b WHERE b.auction_id = a.id)`

const auctionFrom = ` FROM auctions a JOIN vehicles v ON v.id = a.vehicle_id`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	a := &models.Auction{}
	err := row.Scan(&a.ID, &a.VehicleID, &a.CreatedByID, &a.Status, &a.Type, &a.Currency,
		&a.StartTime, &a.EndTime, &a.StartingPrice, &a.ReservePrice, &a.ShowReservePrice, &a.ShowBidCount,
		&a.BuyNowEnabled, &a.BuyNowPrice, &a.WinnerID, &a.FinalPrice, &a.CreatedAt, &a.UpdatedAt,
		&a.VehicleName, &a.BidCount)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collectAuctions(rows pgx.Rows) ([]models.Auction, error) {
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return auctions, nil
}

const userColumns = `id, email, name, password_hash, role, status, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) || pgErrorCode(err) == codeInvalidText {
		return fmt.Errorf("%w: %s %s", auctionerrors.ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// checkID reports an id that is not a UUID as a missing row
func checkID(what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s %s", auctionerrors.ErrNotFound, what, id)
	}
	return nil
}

// GetAuction retrieves an auction with its vehicle name and bid count
func (q queries) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	if err := checkID("auction", id); err != nil {
		return nil, err
	}
	a, err := scanAuction(q.q.QueryRow(ctx, "SELECT "+auctionColumns+auctionFrom+" WHERE a.id = $1", id))
	if err != nil {
		return nil, notFound(err, "auction", id)
	}
	return a, nil
}

// GetUser retrieves a user by id
func (q queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := checkID("user", id); err != nil {
		return nil, err
	}
	u, err := scanUser(q.q.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

// TopBids retrieves the n highest bids of an auction, earliest first on equal amounts
func (q queries) TopBids(ctx context.Context, auctionID string, n int) ([]models.Bid, error) {
	rows, err := q.q.Query(ctx, `
		SELECT b.id, b.auction_id, b.user_id, b.amount, b.is_buy_now, b.created_at, u.name
		FROM bids b JOIN users u ON u.id = b.user_id
		WHERE b.auction_id = $1
		ORDER BY b.amount DESC, b.created_at ASC
		LIMIT $2
	`, auctionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get top bids: %w", err)
	}
	return collectBids(rows)
}

func collectBids(rows pgx.Rows) ([]models.Bid, error) {
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.IsBuyNow, &b.CreatedAt, &b.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}

// CountBids returns the number of bids placed on an auction
func (q queries) CountBids(ctx context.Context, auctionID string) (int, error) {
	var count int
	err := q.q.QueryRow(ctx, "SELECT COUNT(*) FROM bids WHERE auction_id = $1", auctionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bids: %w", err)
	}
	return count, nil
}

// DistinctBidders returns the users that bid on an auction, in order of their first bid
func (q queries) DistinctBidders(ctx context.Context, auctionID string) ([]string, error) {
	rows, err := q.q.Query(ctx, `
		SELECT user_id FROM bids
		WHERE auction_id = $1
		GROUP BY user_id
		ORDER BY MIN(created_at)
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bidders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan bidder: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertBid stores a new bid
func (q queries) InsertBid(ctx context.Context, bid models.Bid) (*models.Bid, error) {
	if err := checkID("auction", bid.AuctionID); err != nil {
		return nil, err
	}
	if err := checkID("user", bid.UserID); err != nil {
		return nil, err
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now()
	}
	err := q.q.QueryRow(ctx, `
		INSERT INTO bids (auction_id, user_id, amount, is_buy_now, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, bid.AuctionID, bid.UserID, bid.Amount, bid.IsBuyNow, bid.CreatedAt).Scan(&bid.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bid: %w", err)
	}
	return &bid, nil
}

// TransitionAuction moves an auction to change.To only if its status still equals from
func (q queries) TransitionAuction(ctx context.Context, id string, from models.AuctionStatus, change store.StatusChange) (*models.Auction, error) {
	if err := checkID("auction", id); err != nil {
		return nil, err
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	if change.SetOutcome {
		tag, err = q.q.Exec(ctx, `
			UPDATE auctions SET status = $3, winner_id = $4, final_price = $5, updated_at = NOW()
			WHERE id = $1 AND status = $2
		`, id, from, change.To, change.WinnerID, change.FinalPrice)
	} else {
		tag, err = q.q.Exec(ctx, `
			UPDATE auctions SET status = $3, updated_at = NOW()
			WHERE id = $1 AND status = $2
		`, id, from, change.To)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update auction status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: auction %s is no longer %s", auctionerrors.ErrConflict, id, from)
	}

	return q.GetAuction(ctx, id)
}

// AuctionsDue lists auctions whose time based transition is due
func (db *DB) AuctionsDue(ctx context.Context, status models.AuctionStatus, now time.Time) ([]models.Auction, error) {
	var query string
	switch status {
	case models.StatusDraft:
		query = "SELECT " + auctionColumns + auctionFrom + " WHERE a.status = $1 AND a.start_time <= $2 ORDER BY a.start_time"
	case models.StatusLive:
		query = "SELECT " + auctionColumns + auctionFrom + " WHERE a.status = $1 AND a.end_time <= $2 ORDER BY a.end_time"
	default:
		return nil, fmt.Errorf("%w: no time based transition from %s", auctionerrors.ErrInvalidInput, status)
	}

	rows, err := db.Pool.Query(ctx, query, status, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get due auctions: %w", err)
	}
	return collectAuctions(rows)
}

// ActiveUsers lists the ACTIVE users of a role
func (db *DB) ActiveUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE role = $1 AND status = $2 ORDER BY created_at",
		role, models.UserActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CreateNotifications stores a batch of notifications in a single statement
func (db *DB) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO notifications (user_id, type, title, message, data) VALUES ")
	args := make([]any, 0, len(notifications)*5)
	for i, n := range notifications {
		if i > 0 {
			sb.WriteString(", ")
		}
		p := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5)
		args = append(args, n.UserID, n.Type, n.Title, n.Message, n.Data)
	}

	if _, err := db.Pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}
	return nil
}
