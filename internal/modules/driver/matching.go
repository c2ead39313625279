package driver

import (
	"strings"

	"wasil/internal/geo"
	"wasil/internal/modules/order"
)

// RankedOrder pairs a ready order with its straight-line distance from the
// driver's position.
type RankedOrder struct {
	Order      order.Order `json:"order"`
	DistanceKm float64     `json:"distance_km"`
}

// RankReadyOrders filters and ranks the ready pool for one driver: orders
// beyond radiusKm (when positive) are dropped, closer orders come first, and
// orders in the driver's residence city are boosted by cityBoostKm so they
// sort ahead of marginally nearer out-of-city ones. Orders without a delivery
// coordinate are skipped; they cannot be ranked.
func RankReadyOrders(d *Driver, orders []order.Order, radiusKm, cityBoostKm float64) []RankedOrder {
	if d.Location.Zero() {
		return nil
	}

	var ranked []RankedOrder
	keys := make(map[string]float64)
	for _, o := range orders {
		if o.Address.Point.Zero() {
			continue
		}
		dist := geo.HaversineKm(d.Location.Lat, d.Location.Lng, o.Address.Point.Lat, o.Address.Point.Lng)
		if radiusKm > 0 && dist > radiusKm {
			continue
		}
		effective := dist
		if d.City != "" && strings.EqualFold(d.City, o.Address.City) {
			effective -= cityBoostKm
			if effective < 0 {
				effective = 0
			}
		}
		keys[string(o.ID)] = effective
		ranked = append(ranked, RankedOrder{Order: o, DistanceKm: dist})
	}

	sortByDistance(ranked, func(r RankedOrder) float64 { return keys[string(r.Order.ID)] })
	return ranked
}

// sortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
