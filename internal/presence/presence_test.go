package presence

import (
	"context"
	"testing"

	"github.com/example/ride-hail/internal/models"
)

func TestUpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	_ = idx.Upsert(ctx, models.DriverPresence{DriverID: "d1", Loc: models.Coord{Lat: 1, Lng: 1}, Status: models.PresenceOnline})
	_ = idx.Upsert(ctx, models.DriverPresence{DriverID: "d1", Loc: models.Coord{Lat: 2, Lng: 2}, Status: models.PresenceOffline})

	p, ok, err := idx.Get(ctx, "d1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if p.Loc.Lat != 2 || p.Status != models.PresenceOffline {
		t.Fatalf("expected last write, got %+v", p)
	}
	if p.LastUpdated.IsZero() {
		t.Fatal("LastUpdated must be stamped on upsert")
	}
}

func TestOnlineFiltersOffline(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	_ = idx.Upsert(ctx, models.DriverPresence{DriverID: "on", Status: models.PresenceOnline})
	_ = idx.Upsert(ctx, models.DriverPresence{DriverID: "off", Status: models.PresenceOffline})

	online, err := idx.Online(ctx)
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if len(online) != 1 || online[0].DriverID != "on" {
		t.Fatalf("online set wrong: %+v", online)
	}
}

func TestUnknownDriverIsNotSubmitted(t *testing.T) {
	ctx := context.Background()
	ap := NewApprovalIndex()
	s, err := ap.Status(ctx, "nobody")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s != models.ApprovalNotSubmitted {
		t.Fatalf("unknown driver status %s", s)
	}

	_ = ap.SetStatus(ctx, "d1", models.ApprovalApproved)
	if s, _ := ap.Status(ctx, "d1"); s != models.ApprovalApproved {
		t.Fatalf("stored status %s", s)
	}
}
