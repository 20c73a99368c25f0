//go:build postgres_integration

package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"wasteroute/internal/model"
)

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	saved, err := p.SaveRoute(t.Context(), sampleRoute("crew-int"))
	if err != nil {
		t.Fatalf("SaveRoute: %v", err)
	}
	defer func() { _ = p.DeleteRoute(t.Context(), saved.ID) }()

	got, err := p.GetRoute(t.Context(), saved.ID)
	if err != nil {
		t.Fatalf("GetRoute: %v", err)
	}
	if len(got.Waypoints) != 2 || got.Waypoints[1].BinID != "b2" {
		t.Fatalf("waypoints not round-tripped: %+v", got.Waypoints)
	}

	actual := 30.0
	_, changed, err := p.UpdateRouteStatus(t.Context(), saved.ID, model.StatusUpdate{Status: model.StatusCompleted, ActualTimeMinutes: &actual}, time.Now())
	if err != nil {
		t.Fatalf("UpdateRouteStatus: %v", err)
	}
	if !changed {
		t.Fatalf("pending -> completed should report a change")
	}
	if _, _, err := p.UpdateRouteStatus(t.Context(), saved.ID, model.StatusUpdate{Status: model.StatusPending}, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
	if _, _, err := p.ListRoutes(t.Context(), model.RouteFilter{CrewID: "crew-int"}, "", 1); err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if _, _, err := p.ListRoutes(t.Context(), model.RouteFilter{}, "route_missing", 1); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("want ErrInvalidCursor, got %v", err)
	}
}

func TestPostgresListRoutesCreationOrder(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	// ids sort opposite to creation time
	base := time.Now().UTC().Truncate(time.Millisecond)
	var ids []string
	for i, id := range []string{"route_zz_order", "route_mm_order", "route_aa_order"} {
		r := sampleRoute("crew-order")
		r.ID = id
		at := base.Add(time.Duration(i) * time.Second)
		r.CreatedAt = &at
		if _, err := p.SaveRoute(t.Context(), r); err != nil {
			t.Fatalf("SaveRoute: %v", err)
		}
		ids = append(ids, id)
		defer func(id string) { _ = p.DeleteRoute(t.Context(), id) }(id)
	}

	f := model.RouteFilter{CrewID: "crew-order"}
	page, next, err := p.ListRoutes(t.Context(), f, "", 2)
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[0] || page[1].ID != ids[1] {
		t.Fatalf("first page out of creation order: %+v", page)
	}
	page, _, err = p.ListRoutes(t.Context(), f, next, 2)
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[2] {
		t.Fatalf("second page out of creation order: %+v", page)
	}
}
