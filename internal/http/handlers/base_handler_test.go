package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"wasil/internal/modules/order"
	"wasil/internal/modules/wallet"
)

func TestIsValidID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4", true},
		{"abc123", true},
		{"", false},
		{"ABC123", false}, // IDs are lowercase hex
		{"zzz", false},
		{"a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4ff", false}, // too long
		{"../etc/passwd", false},
	}
	for _, tc := range cases {
		if got := isValidID(tc.id); got != tc.want {
			t.Errorf("isValidID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestWriteDomainError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		want int
	}{
		{order.ErrBadRequest, http.StatusBadRequest},
		{wallet.ErrBadAmount, http.StatusBadRequest},
		{order.ErrNotFound, http.StatusNotFound},
		{wallet.ErrNotFound, http.StatusNotFound},
		{order.ErrForbidden, http.StatusForbidden},
		{order.ErrInsufficientBalance, http.StatusPaymentRequired},
		{wallet.ErrInsufficientBalance, http.StatusPaymentRequired},
		{order.ErrInvalidTransition, http.StatusConflict},
		{order.ErrConflict, http.StatusConflict},
		{order.ErrDriverUnavailable, http.StatusConflict},
		{wallet.ErrEscrowResolved, http.StatusConflict},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeDomainError(c, tc.err)
		if w.Code != tc.want {
			t.Errorf("writeDomainError(%v) = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}
