package order

import "testing"

// TestCanTransition verifies the transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusCreated, StatusConfirmed, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusPickedUp, true},
		{StatusPickedUp, StatusOnTheWay, true},
		{StatusOnTheWay, StatusArrived, true},
		{StatusArrived, StatusDelivered, true},
		// shortcuts a driver may legitimately take
		{StatusPickedUp, StatusArrived, true},
		{StatusPickedUp, StatusDelivered, true},
		{StatusOnTheWay, StatusDelivered, true},
		// cancellation only before pickup
		{StatusCreated, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPreparing, StatusCancelled, true},
		{StatusReady, StatusCancelled, false},
		{StatusPickedUp, StatusCancelled, false},
		{StatusOnTheWay, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		// return/refund tail
		{StatusDelivered, StatusReturned, true},
		{StatusReturned, StatusRefunded, true},
		{StatusDelivered, StatusRefunded, false},
		// failure from every active state
		{StatusCreated, StatusFailed, true},
		{StatusReady, StatusFailed, true},
		{StatusArrived, StatusFailed, true},
		// terminal states have no outgoing transitions
		{StatusCancelled, StatusCreated, false},
		{StatusRefunded, StatusCreated, false},
		{StatusFailed, StatusCreated, false},
		// skipping states is not allowed
		{StatusCreated, StatusReady, false},
		{StatusCreated, StatusDelivered, false},
		{StatusConfirmed, StatusPickedUp, false},
		{StatusReady, StatusDelivered, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []Status{StatusCancelled, StatusRefunded, StatusFailed}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
	// delivered and returned still have one legal exit
	for _, s := range []Status{StatusCreated, StatusDelivered, StatusReturned} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestWalletInPlay(t *testing.T) {
	cases := []struct {
		method PaymentMethod
		used   int64
		want   bool
	}{
		{PayWallet, 100, true},
		{PayMixed, 50, true},
		{PayWallet, 0, false},
		{PayCash, 100, false},
		{PayCard, 100, false},
	}
	for _, tc := range cases {
		o := Order{PaymentMethod: tc.method, WalletUsed: tc.used}
		if got := o.WalletInPlay(); got != tc.want {
			t.Errorf("WalletInPlay(%s, %d) = %v, want %v", tc.method, tc.used, got, tc.want)
		}
	}
}
