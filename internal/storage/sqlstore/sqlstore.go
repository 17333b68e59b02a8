// Package sqlstore persists mentors' calendars, bookings and ratings in
// PostgreSQL or SQLite through sqlx. Timestamps are stored as Unix
// milliseconds so both engines share one schema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentor-schedule-service/internal/models"
	"mentor-schedule-service/internal/storage"
	"mentor-schedule-service/internal/storage/migrate"
	"mentor-schedule-service/internal/storage/sqlstore/migrations"
	"mentor-schedule-service/pkg/response"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type Store struct {
	db *sqlx.DB
	queries
}

var _ storage.Store = (*Store)(nil)

// queries runs statements either on the pool or on one transaction.
type queries struct {
	ext    sqlx.ExtContext
	driver string
}

// New opens the database, applies the embedded migrations and returns the store.
func New(ctx context.Context, driver, dsn string) (*Store, error) {
	const op = "storage.sqlstore.New"

	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("%s: unsupported driver %q", op, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// SQLite has a single writer; one connection keeps transactions from
	// failing with SQLITE_BUSY instead of waiting.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	if err := migrate.Apply(ctx, db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{db: db, queries: queries{ext: db, driver: driver}}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// WithinTx runs fn in a read-committed transaction. Writers serialise per
// mentor with LockMentor, which then sees everything committed before it.
func (s *Store) WithinTx(ctx context.Context, fn func(q storage.Queries) error) error {
	return s.run(ctx, nil, fn)
}

// WithinSnapshot runs fn in a read-only transaction over one snapshot, so
// a reader never sees half of a concurrent availability replace.
func (s *Store) WithinSnapshot(ctx context.Context, fn func(q storage.Queries) error) error {
	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return s.run(ctx, opts, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(q storage.Queries) error) error {
	const op = "storage.sqlstore.run"

	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(queries{ext: tx, driver: s.driver}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, mapErr(err))
	}

	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// mapErr translates driver errors into the service error taxonomy.
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return response.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", response.ErrConflict, pqErr.Constraint)
		case "40001":
			return storage.ErrStale
		}
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return response.ErrConflict
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
		return response.ErrConflict
	}

	return err
}

// #### availability ####

type periodRow struct {
	ID       string         `db:"id"`
	MentorID string         `db:"mentor_id"`
	StartAt  int64          `db:"start_at"`
	EndAt    int64          `db:"end_at"`
	Reason   sql.NullString `db:"reason"`
}

func (q queries) GetAvailability(ctx context.Context, mentorID string) (models.Availability, bool, error) {
	const op = "storage.sqlstore.GetAvailability"

	a := models.Availability{Settings: models.DefaultCalendarSettings(mentorID)}
	found := true

	err := sqlx.GetContext(ctx, q.ext, &a.Settings, q.ext.Rebind(`
		SELECT mentor_id, session_duration_min, buffer_time_min, advance_booking_days, minimum_notice_hours, timezone
		FROM calendar_settings WHERE mentor_id = ?`), mentorID)
	if errors.Is(err, sql.ErrNoRows) {
		found = false
	} else if err != nil {
		return a, false, fmt.Errorf("%s: settings: %w", op, err)
	}

	if err := sqlx.SelectContext(ctx, q.ext, &a.Rules, q.ext.Rebind(`
		SELECT id, mentor_id, day_of_week, start_minute, end_minute
		FROM availability_rules WHERE mentor_id = ?
		ORDER BY day_of_week, start_minute`), mentorID); err != nil {
		return a, false, fmt.Errorf("%s: rules: %w", op, err)
	}

	var rows []periodRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, q.ext.Rebind(`
		SELECT id, mentor_id, start_at, end_at, reason
		FROM unavailability_periods WHERE mentor_id = ?
		ORDER BY start_at`), mentorID); err != nil {
		return a, false, fmt.Errorf("%s: periods: %w", op, err)
	}

	for _, row := range rows {
		p := models.UnavailabilityPeriod{
			ID:       row.ID,
			MentorID: row.MentorID,
			Start:    fromMillis(row.StartAt),
			End:      fromMillis(row.EndAt),
		}
		if row.Reason.Valid {
			reason := row.Reason.String
			p.Reason = &reason
		}
		a.Periods = append(a.Periods, p)
	}

	return a, found, nil
}

func (q queries) ReplaceAvailability(ctx context.Context, mentorID string, rules []models.AvailabilityRule, settings models.CalendarSettings) error {
	const op = "storage.sqlstore.ReplaceAvailability"

	if _, err := q.ext.ExecContext(ctx, q.ext.Rebind(`DELETE FROM availability_rules WHERE mentor_id = ?`), mentorID); err != nil {
		return fmt.Errorf("%s: delete rules: %w", op, err)
	}

	insert := q.ext.Rebind(`
		INSERT INTO availability_rules (id, mentor_id, day_of_week, start_minute, end_minute)
		VALUES (?, ?, ?, ?, ?)`)
	for _, r := range rules {
		if _, err := q.ext.ExecContext(ctx, insert, r.ID, mentorID, int(r.DayOfWeek), int(r.StartTime), int(r.EndTime)); err != nil {
			return fmt.Errorf("%s: insert rule: %w", op, mapErr(err))
		}
	}

	_, err := q.ext.ExecContext(ctx, q.ext.Rebind(`
		INSERT INTO calendar_settings
			(mentor_id, session_duration_min, buffer_time_min, advance_booking_days, minimum_notice_hours, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mentor_id) DO UPDATE SET
			session_duration_min = excluded.session_duration_min,
			buffer_time_min = excluded.buffer_time_min,
			advance_booking_days = excluded.advance_booking_days,
			minimum_notice_hours = excluded.minimum_notice_hours,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`),
		mentorID,
		settings.SessionDurationMin,
		settings.BufferTimeMin,
		settings.AdvanceBookingDays,
		settings.MinimumNoticeHours,
		settings.Timezone,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("%s: upsert settings: %w", op, err)
	}

	return nil
}

func (q queries) ReplaceUnavailability(ctx context.Context, mentorID string, periods []models.UnavailabilityPeriod) error {
	const op = "storage.sqlstore.ReplaceUnavailability"

	if _, err := q.ext.ExecContext(ctx, q.ext.Rebind(`DELETE FROM unavailability_periods WHERE mentor_id = ?`), mentorID); err != nil {
		return fmt.Errorf("%s: delete periods: %w", op, err)
	}

	insert := q.ext.Rebind(`
		INSERT INTO unavailability_periods (id, mentor_id, start_at, end_at, reason)
		VALUES (?, ?, ?, ?, ?)`)
	for _, p := range periods {
		var reason sql.NullString
		if p.Reason != nil {
			reason = sql.NullString{String: *p.Reason, Valid: true}
		}
		if _, err := q.ext.ExecContext(ctx, insert, p.ID, mentorID, toMillis(p.Start), toMillis(p.End), reason); err != nil {
			return fmt.Errorf("%s: insert period: %w", op, mapErr(err))
		}
	}

	return nil
}

func (q queries) LockMentor(ctx context.Context, mentorID string) error {
	const op = "storage.sqlstore.LockMentor"

	// SQLite runs on a single connection, so transactions are already serial.
	if q.driver != DriverPostgres {
		return nil
	}

	if _, err := q.ext.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "mentor:"+mentorID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### bookings ####

type bookingRow struct {
	ID                string         `db:"id"`
	MentorID          string         `db:"mentor_id"`
	CustomerID        string         `db:"customer_id"`
	SlotStart         int64          `db:"slot_start"`
	SlotEnd           int64          `db:"slot_end"`
	Status            string         `db:"status"`
	MeetingURL        sql.NullString `db:"meeting_url"`
	PaymentIntentID   sql.NullString `db:"payment_intent_id"`
	FlaggedByCustomer bool           `db:"flagged_by_customer"`
	FlaggedByMentor   bool           `db:"flagged_by_mentor"`
	CustomerRating    sql.NullInt64  `db:"customer_rating"`
	Version           int64          `db:"version"`
	CreatedAt         int64          `db:"created_at"`
	UpdatedAt         int64          `db:"updated_at"`
}

const bookingColumns = `id, mentor_id, customer_id, slot_start, slot_end, status, meeting_url, payment_intent_id,
	flagged_by_customer, flagged_by_mentor, customer_rating, version, created_at, updated_at`

func (row bookingRow) model() models.Booking {
	b := models.Booking{
		ID:                row.ID,
		MentorID:          row.MentorID,
		CustomerID:        row.CustomerID,
		SlotStart:         fromMillis(row.SlotStart),
		SlotEnd:           fromMillis(row.SlotEnd),
		Status:            models.BookingStatus(row.Status),
		FlaggedByCustomer: row.FlaggedByCustomer,
		FlaggedByMentor:   row.FlaggedByMentor,
		Version:           row.Version,
		CreatedAt:         fromMillis(row.CreatedAt),
		UpdatedAt:         fromMillis(row.UpdatedAt),
	}
	if row.MeetingURL.Valid {
		b.MeetingURL = &row.MeetingURL.String
	}
	if row.PaymentIntentID.Valid {
		b.PaymentIntentID = &row.PaymentIntentID.String
	}
	if row.CustomerRating.Valid {
		stars := int(row.CustomerRating.Int64)
		b.CustomerRating = &stars
	}
	return b
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func (q queries) selectBookings(ctx context.Context, where string, args ...any) ([]models.Booking, error) {
	var rows []bookingRow
	query := q.ext.Rebind(`SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where + ` ORDER BY slot_start, id`)
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]models.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (q queries) ActiveBookings(ctx context.Context, mentorID string, from, to time.Time) ([]models.Booking, error) {
	const op = "storage.sqlstore.ActiveBookings"

	out, err := q.selectBookings(ctx,
		`mentor_id = ? AND status <> 'cancelled' AND slot_start < ? AND slot_end > ?`,
		mentorID, toMillis(to), toMillis(from),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (q queries) ListBookings(ctx context.Context, userID string, role models.Role) ([]models.Booking, error) {
	const op = "storage.sqlstore.ListBookings"

	var where string
	switch role {
	case models.RoleMentor:
		where = `mentor_id = ?`
	case models.RoleCustomer:
		where = `customer_id = ?`
	default:
		return nil, fmt.Errorf("%s: %w: unknown role %q", op, response.ErrValidation, role)
	}

	out, err := q.selectBookings(ctx, where, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (q queries) InsertBooking(ctx context.Context, b models.Booking) error {
	const op = "storage.sqlstore.InsertBooking"

	_, err := q.ext.ExecContext(ctx, q.ext.Rebind(`
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.MentorID, b.CustomerID,
		toMillis(b.SlotStart), toMillis(b.SlotEnd), string(b.Status),
		nullString(b.MeetingURL), nullString(b.PaymentIntentID),
		b.FlaggedByCustomer, b.FlaggedByMentor, nullInt(b.CustomerRating),
		b.Version, toMillis(b.CreatedAt), toMillis(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return nil
}

func (q queries) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	const op = "storage.sqlstore.GetBooking"

	var row bookingRow
	err := sqlx.GetContext(ctx, q.ext, &row, q.ext.Rebind(`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`), id)
	if err != nil {
		return models.Booking{}, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return row.model(), nil
}

func (q queries) UpdateBooking(ctx context.Context, b models.Booking) (models.Booking, error) {
	const op = "storage.sqlstore.UpdateBooking"

	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`
		UPDATE bookings SET
			status = ?,
			meeting_url = ?,
			payment_intent_id = ?,
			flagged_by_customer = ?,
			flagged_by_mentor = ?,
			customer_rating = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`),
		string(b.Status),
		nullString(b.MeetingURL),
		nullString(b.PaymentIntentID),
		b.FlaggedByCustomer,
		b.FlaggedByMentor,
		nullInt(b.CustomerRating),
		toMillis(b.UpdatedAt),
		b.ID,
		b.Version,
	)
	if err != nil {
		return b, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return b, fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		if _, err := q.GetBooking(ctx, b.ID); err != nil {
			return b, fmt.Errorf("%s: %w", op, err)
		}
		return b, fmt.Errorf("%s: %w", op, storage.ErrStale)
	}

	b.Version++
	return b, nil
}

// #### ratings ####

func (q queries) InsertRating(ctx context.Context, r models.Rating) error {
	const op = "storage.sqlstore.InsertRating"

	_, err := q.ext.ExecContext(ctx, q.ext.Rebind(`
		INSERT INTO ratings (booking_id, mentor_id, stars, notes, submitted_at)
		VALUES (?, ?, ?, ?, ?)`),
		r.BookingID, r.MentorID, r.Stars, nullString(r.Notes), toMillis(r.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return nil
}

type statsRow struct {
	MentorID string `db:"mentor_id"`
	Total    int    `db:"total"`
	Sum      int    `db:"stars_sum"`
	Stars1   int    `db:"stars_1"`
	Stars2   int    `db:"stars_2"`
	Stars3   int    `db:"stars_3"`
	Stars4   int    `db:"stars_4"`
	Stars5   int    `db:"stars_5"`
}

func (q queries) GetRatingStats(ctx context.Context, mentorID string) (models.RatingStats, error) {
	const op = "storage.sqlstore.GetRatingStats"

	var row statsRow
	err := sqlx.GetContext(ctx, q.ext, &row, q.ext.Rebind(`
		SELECT mentor_id, total, stars_sum, stars_1, stars_2, stars_3, stars_4, stars_5
		FROM mentor_rating_stats WHERE mentor_id = ?`), mentorID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RatingStats{MentorID: mentorID}, nil
	}
	if err != nil {
		return models.RatingStats{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.RatingStats{
		MentorID:     row.MentorID,
		Total:        row.Total,
		Sum:          row.Sum,
		Distribution: [models.MaxStars]int{row.Stars1, row.Stars2, row.Stars3, row.Stars4, row.Stars5},
	}, nil
}

func (q queries) SaveRatingStats(ctx context.Context, s models.RatingStats) error {
	const op = "storage.sqlstore.SaveRatingStats"

	d := s.Distribution
	_, err := q.ext.ExecContext(ctx, q.ext.Rebind(`
		INSERT INTO mentor_rating_stats (mentor_id, total, stars_sum, stars_1, stars_2, stars_3, stars_4, stars_5)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mentor_id) DO UPDATE SET
			total = excluded.total,
			stars_sum = excluded.stars_sum,
			stars_1 = excluded.stars_1,
			stars_2 = excluded.stars_2,
			stars_3 = excluded.stars_3,
			stars_4 = excluded.stars_4,
			stars_5 = excluded.stars_5`),
		s.MentorID, s.Total, s.Sum, d[0], d[1], d[2], d[3], d[4],
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
