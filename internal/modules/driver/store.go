package driver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"wasil/internal/types"
)

const driverGeoKey = "drivers:geo"

// Store keeps the driver record in Postgres and the live position in a Redis
// GEO set, so nearby lookups stay off the primary database.
type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, city, is_available, is_banned, loc_lat, loc_lng, located_at
		FROM drivers WHERE id = $1`, string(id),
	)
	var d Driver
	var lat, lng *float64
	err := row.Scan(&d.ID, &d.Name, &d.City, &d.IsAvailable, &d.IsBanned, &lat, &lng, &d.LocatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d.Location = types.Point{Lat: *lat, Lng: *lng}
	}
	return &d, nil
}

func (s *Store) SetAvailability(ctx context.Context, id types.ID, available bool) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE drivers SET is_available = $2 WHERE id = $1 AND NOT is_banned`,
		string(id), available,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetLocation writes the Postgres snapshot and mirrors the position into the
// GEO set. The GEO write is secondary; its failure is reported but the
// snapshot stands.
func (s *Store) SetLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE drivers SET loc_lat = $2, loc_lng = $3, located_at = $4 WHERE id = $1`,
		string(id), p.Lat, p.Lng, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}
