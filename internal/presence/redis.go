package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hail/internal/models"
)

// RedisTracker implements Tracker and Approvals on Redis: driver positions
// in a GEO key, online membership in a set, and per-driver metadata
// (status, approval, last_updated) in a hash.
type RedisTracker struct {
	client *redis.Client
	geoKey string
}

func NewRedisTracker(addr, password, geoKey string) *RedisTracker {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTracker{client: c, geoKey: geoKey}
}

// NewRedisTrackerWithClient reuses an existing client (consumer process).
func NewRedisTrackerWithClient(c *redis.Client, geoKey string) *RedisTracker {
	return &RedisTracker{client: c, geoKey: geoKey}
}

func (r *RedisTracker) Upsert(ctx context.Context, p models.DriverPresence) error {
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now()
	}
	if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Longitude: p.Loc.Lng, Latitude: p.Loc.Lat, Name: p.DriverID,
	}).Result(); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, metaKey(p.DriverID), map[string]interface{}{
		"status":       string(p.Status),
		"last_updated": p.LastUpdated.Format(time.RFC3339),
	}).Err(); err != nil {
		return err
	}
	if p.Status == models.PresenceOnline {
		return r.client.SAdd(ctx, onlineKey(r.geoKey), p.DriverID).Err()
	}
	return r.client.SRem(ctx, onlineKey(r.geoKey), p.DriverID).Err()
}

func (r *RedisTracker) Get(ctx context.Context, driverID string) (models.DriverPresence, bool, error) {
	meta, err := r.client.HGetAll(ctx, metaKey(driverID)).Result()
	if err != nil {
		return models.DriverPresence{}, false, err
	}
	if len(meta) == 0 {
		return models.DriverPresence{}, false, nil
	}
	p := models.DriverPresence{DriverID: driverID, Status: models.PresenceStatus(meta["status"])}
	if v, ok := meta["last_updated"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.LastUpdated = t
		}
	}
	pos, err := r.client.GeoPos(ctx, r.geoKey, driverID).Result()
	if err == nil && len(pos) == 1 && pos[0] != nil {
		p.Loc = models.Coord{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
	}
	return p, true, nil
}

func (r *RedisTracker) Online(ctx context.Context) ([]models.DriverPresence, error) {
	ids, err := r.client.SMembers(ctx, onlineKey(r.geoKey)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverPresence, 0, len(ids))
	for _, id := range ids {
		p, ok, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok && p.Status == models.PresenceOnline {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *RedisTracker) Status(ctx context.Context, driverID string) (models.ApprovalStatus, error) {
	v, err := r.client.HGet(ctx, metaKey(driverID), "approval").Result()
	if err == redis.Nil || v == "" {
		return models.ApprovalNotSubmitted, nil
	}
	if err != nil {
		return "", err
	}
	return models.ApprovalStatus(v), nil
}

func (r *RedisTracker) SetStatus(ctx context.Context, driverID string, s models.ApprovalStatus) error {
	return r.client.HSet(ctx, metaKey(driverID), "approval", string(s)).Err()
}

func (r *RedisTracker) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisTracker) Close() error { return r.client.Close() }

func metaKey(id string) string { return "driver:meta:" + id }

func onlineKey(geoKey string) string { return geoKey + ":online" }

var _ Tracker = (*RedisTracker)(nil)
var _ Approvals = (*RedisTracker)(nil)
