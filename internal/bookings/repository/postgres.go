package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "slotguard/internal/bookings/errors"
	"slotguard/pkg/db"
	pgtx "slotguard/pkg/db/postgres"
	"slotguard/pkg/model"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = "id::text, user_id, resource_id, booking_date, status, notes, created_at"

type postgresBookingRepository struct {
	pool         *pgxpool.Pool
	txManager    db.TransactionManager
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewPostgresBookingRepository(pool *pgxpool.Pool, readTimeout, writeTimeout time.Duration) BookingRepository {
	return &postgresBookingRepository{
		pool:         pool,
		txManager:    pgtx.NewTransactionManager(pool),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.ResourceID, &b.BookingDate, &status, &b.Notes, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	b.BookingDate = b.BookingDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (r *postgresBookingRepository) Insert(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	id := uuid.NewString()
	createdAt := time.Now().UTC().Truncate(time.Microsecond)

	_, err := pgtx.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO bookings (id, user_id, resource_id, booking_date, status, notes, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)`,
		id, booking.UserID, booking.ResourceID, booking.BookingDate, string(booking.Status), booking.Notes, createdAt,
	)
	if err != nil {
		if pgtx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", bookingserrors.ErrDuplicateActive, booking.SlotKey())
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = createdAt
	return nil
}

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	row := pgtx.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1::uuid`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

func (r *postgresBookingRepository) FindActive(ctx context.Context, userID, resourceID string, bookingDate time.Time) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	row := pgtx.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_id = $1 AND resource_id = $2 AND booking_date = $3 AND status = $4`,
		userID, resourceID, model.NormalizeBookingDate(bookingDate), string(model.StatusActive))
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active booking: %w", err)
	}
	return b, nil
}

func (r *postgresBookingRepository) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	conn := pgtx.Conn(ctx, r.pool)
	row := conn.QueryRow(ctx,
		`UPDATE bookings SET status = $3 WHERE id = $1::uuid AND status = $2
		 RETURNING `+bookingColumns,
		id, string(from), string(to))
	b, err := scanBooking(row)
	if err == nil {
		return b, nil
	}
	if pgtx.IsUniqueViolation(err) {
		return nil, bookingserrors.ErrDuplicateActive
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1::uuid)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check booking existence: %w", err)
	}
	if !exists {
		return nil, bookingserrors.ErrNotFound
	}
	return nil, bookingserrors.ErrStatusConflict
}

func (r *postgresBookingRepository) List(ctx context.Context, filter Filter) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.Order == OrderBookingDateDesc {
		query += " ORDER BY booking_date DESC, seq ASC"
	} else {
		query += " ORDER BY seq ASC"
	}

	rows, err := pgtx.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (r *postgresBookingRepository) ExecuteTransaction(ctx context.Context, fn db.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
