// Concurrency tests for the status CAS guard (run with -race).
package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"wasil/internal/types"
)

func TestConcurrentAssignSameOrder(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	fx.wallet.balance["user1"] = 200

	o, err := fx.svc.Create(ctx, walletOrderCmd("user1", 110))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	vendor := types.Identity{ID: "vendor1", Role: types.RoleVendor}
	advance(t, fx, o.ID, vendor, StatusConfirmed, StatusPreparing, StatusReady)

	const drivers = 8
	results := make(chan error, drivers)
	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		id := types.ID([]string{"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8"}[i])
		fx.dir.active[id] = true
		wg.Add(1)
		go func(driverID types.ID) {
			defer wg.Done()
			_, err := fx.svc.AssignDriver(ctx, AssignDriverCommand{
				OrderID:    o.ID,
				DriverID:   driverID,
				AssignedBy: types.Identity{ID: driverID, Role: types.RoleDriver},
			})
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning assignment, got %d", wins)
	}

	got, err := fx.svc.Get(ctx, o.ID, types.Identity{ID: "admin1", Role: types.RoleAdmin})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != StatusPickedUp {
		t.Fatalf("expected picked_up after winning assignment, got %s", got.Status)
	}
	if got.DriverID == nil {
		t.Fatal("winning assignment must stamp the driver")
	}
}

func TestConcurrentCancelVsConfirm(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	fx.wallet.balance["user1"] = 200

	o, err := fx.svc.Create(ctx, walletOrderCmd("user1", 110))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := fx.svc.Cancel(ctx, CancelCommand{
			OrderID:     o.ID,
			Reason:      "user_cancel",
			CancelledBy: types.Identity{ID: "user1", Role: types.RoleCustomer},
		})
		errs <- err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := fx.svc.UpdateStatus(ctx, UpdateStatusCommand{
			OrderID:   o.ID,
			Status:    StatusConfirmed,
			ChangedBy: types.Identity{ID: "vendor1", Role: types.RoleVendor},
		})
		errs <- err
	}()

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// cancelled is reachable from confirmed too, so both may succeed; zero
	// successes would mean the guard deadlocked both.
	if success < 1 {
		t.Fatal("at least one command must win")
	}

	got, err := fx.repo.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status == StatusCancelled && fx.wallet.onHold["user1"] != 0 {
		t.Fatalf("cancelled order left %d on hold", fx.wallet.onHold["user1"])
	}
}
