package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/models"
)

// PostgresStore persists rides. The status guard rides on the UPDATE's
// WHERE clause, so the row lock makes the conditional update atomic; a
// zero-row result means the guard failed and a follow-up SELECT tells
// the caller what status won.
type PostgresStore struct {
	db  *sql.DB
	pub Publisher
}

func NewPostgresStore(dsn string, pub Publisher) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	return &PostgresStore{db: db, pub: pub}, nil
}

const rideColumns = `id, passenger_id, COALESCE(driver_id, ''),
	pickup_lat, pickup_lng, COALESCE(pickup_address, ''),
	drop_lat, drop_lng, COALESCE(drop_address, ''),
	fare_estimate, COALESCE(fare_final, 0), status,
	created_at, accepted_at, completed_at`

func (p *PostgresStore) Create(ctx context.Context, d Draft) (*models.Ride, error) {
	r := &models.Ride{
		ID:           newID(),
		PassengerID:  d.PassengerID,
		Pickup:       d.Pickup,
		Drop:         d.Drop,
		FareEstimate: d.FareEstimate,
		Status:       models.StatusPending,
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO rides(id, passenger_id, pickup_lat, pickup_lng, pickup_address,
			drop_lat, drop_lng, drop_address, fare_estimate, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		RETURNING created_at`,
		r.ID, r.PassengerID,
		r.Pickup.Coord.Lat, r.Pickup.Coord.Lng, r.Pickup.Address,
		r.Drop.Coord.Lat, r.Drop.Coord.Lng, r.Drop.Address,
		r.FareEstimate, string(r.Status))
	if err := row.Scan(&r.CreatedAt); err != nil {
		return nil, err
	}
	p.pub.Publish(feed.Event{Op: feed.OpInsert, Ride: *r})
	return r, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) ConditionalUpdate(ctx context.Context, id string, expected models.RideStatus, patch Patch) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE rides SET
			status = $3,
			driver_id = COALESCE(NULLIF($4, ''), driver_id),
			fare_final = CASE WHEN $5 > 0 THEN $5 ELSE fare_final END,
			accepted_at = CASE WHEN $3 = 'accepted' AND accepted_at IS NULL THEN NOW() ELSE accepted_at END,
			completed_at = CASE WHEN $3 = 'completed' AND completed_at IS NULL THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = $2
		RETURNING `+rideColumns,
		id, string(expected), string(patch.Status), patch.DriverID, patch.FareFinal)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Guard failed or the ride is gone. Read the status that won the race.
		var cur string
		err2 := p.db.QueryRowContext(ctx, `SELECT status FROM rides WHERE id = $1`, id).Scan(&cur)
		if errors.Is(err2, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err2 != nil {
			return nil, err2
		}
		return nil, &NotAppliedError{Current: models.RideStatus(cur)}
	}
	if err != nil {
		return nil, err
	}
	p.pub.Publish(feed.Event{Op: feed.OpUpdate, Ride: *r})
	return r, nil
}

func (p *PostgresStore) Query(ctx context.Context, f Filter) ([]*models.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.PassengerID != "" {
		args = append(args, f.PassengerID)
		q += fmt.Sprintf(` AND passenger_id = $%d`, len(args))
	}
	if f.DriverID != "" {
		args = append(args, f.DriverID)
		q += fmt.Sprintf(` AND driver_id = $%d`, len(args))
	}
	q += ` ORDER BY created_at ASC`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Ride, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error { return p.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRide(s scanner) (*models.Ride, error) {
	var r models.Ride
	var status string
	var acceptedAt, completedAt sql.NullTime
	err := s.Scan(
		&r.ID, &r.PassengerID, &r.DriverID,
		&r.Pickup.Coord.Lat, &r.Pickup.Coord.Lng, &r.Pickup.Address,
		&r.Drop.Coord.Lat, &r.Drop.Coord.Lng, &r.Drop.Address,
		&r.FareEstimate, &r.FareFinal, &status,
		&r.CreatedAt, &acceptedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.RideStatus(status)
	if acceptedAt.Valid {
		r.AcceptedAt = acceptedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = completedAt.Time
	}
	return &r, nil
}
