package driver

import (
	"testing"

	"wasil/internal/modules/order"
	"wasil/internal/types"
)

func readyOrder(id string, city string, lat, lng float64) order.Order {
	return order.Order{
		ID:     types.ID(id),
		Status: order.StatusReady,
		Address: order.Address{
			City:  city,
			Point: types.Point{Lat: lat, Lng: lng},
		},
	}
}

func TestRankReadyOrders_NearestFirst(t *testing.T) {
	d := &Driver{
		ID:       "d1",
		City:     "Sanaa",
		Location: types.Point{Lat: 15.3694, Lng: 44.1910},
	}
	orders := []order.Order{
		readyOrder("far", "Sanaa", 15.4200, 44.2500),
		readyOrder("near", "Sanaa", 15.3700, 44.1920),
		readyOrder("mid", "Sanaa", 15.3900, 44.2100),
	}

	ranked := RankReadyOrders(d, orders, 50, 0)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked orders, got %d", len(ranked))
	}
	want := []string{"near", "mid", "far"}
	for i, w := range want {
		if string(ranked[i].Order.ID) != w {
			t.Errorf("position %d: got %s, want %s", i, ranked[i].Order.ID, w)
		}
	}
	if ranked[0].DistanceKm > ranked[1].DistanceKm || ranked[1].DistanceKm > ranked[2].DistanceKm {
		t.Error("reported distances must be non-decreasing")
	}
}

func TestRankReadyOrders_RadiusFilter(t *testing.T) {
	d := &Driver{ID: "d1", Location: types.Point{Lat: 15.3694, Lng: 44.1910}}
	orders := []order.Order{
		readyOrder("inside", "Sanaa", 15.3750, 44.1950),
		readyOrder("outside", "Aden", 12.7855, 45.0187), // hundreds of km away
	}

	ranked := RankReadyOrders(d, orders, 10, 0)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 order within radius, got %d", len(ranked))
	}
	if ranked[0].Order.ID != "inside" {
		t.Errorf("got %s, want inside", ranked[0].Order.ID)
	}
}

func TestRankReadyOrders_CityBoost(t *testing.T) {
	d := &Driver{
		ID:       "d1",
		City:     "Sanaa",
		Location: types.Point{Lat: 15.3694, Lng: 44.1910},
	}
	// The out-of-city order is slightly nearer; a 2km boost must let the
	// same-city order overtake it.
	orders := []order.Order{
		readyOrder("other_city", "Amran", 15.3800, 44.2000),
		readyOrder("same_city", "Sanaa", 15.3850, 44.2050),
	}

	unboosted := RankReadyOrders(d, orders, 50, 0)
	if unboosted[0].Order.ID != "other_city" {
		t.Fatalf("without boost the nearer order must rank first, got %s", unboosted[0].Order.ID)
	}

	boosted := RankReadyOrders(d, orders, 50, 2)
	if boosted[0].Order.ID != "same_city" {
		t.Errorf("with boost the same-city order must rank first, got %s", boosted[0].Order.ID)
	}
	// The boost changes ordering only; the reported distance stays real.
	if boosted[0].DistanceKm <= boosted[1].DistanceKm {
		t.Error("boost must not rewrite the reported distance")
	}
}

func TestRankReadyOrders_SkipsUnrankable(t *testing.T) {
	d := &Driver{ID: "d1", Location: types.Point{Lat: 15.3694, Lng: 44.1910}}
	orders := []order.Order{
		readyOrder("located", "Sanaa", 15.3750, 44.1950),
		readyOrder("no_point", "Sanaa", 0, 0),
	}

	ranked := RankReadyOrders(d, orders, 0, 0)
	if len(ranked) != 1 {
		t.Fatalf("expected unlocated order to be skipped, got %d results", len(ranked))
	}

	// A driver with no position cannot rank anything.
	if got := RankReadyOrders(&Driver{ID: "d2"}, orders, 0, 0); got != nil {
		t.Errorf("expected nil for unlocated driver, got %v", got)
	}
}

func TestDriverActive(t *testing.T) {
	cases := []struct {
		name      string
		available bool
		banned    bool
		want      bool
	}{
		{"available", true, false, true},
		{"off shift", false, false, false},
		{"banned", true, true, false},
	}
	for _, tc := range cases {
		d := Driver{IsAvailable: tc.available, IsBanned: tc.banned}
		if got := d.Active(); got != tc.want {
			t.Errorf("%s: Active() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
