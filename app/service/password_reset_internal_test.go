package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfirmResult(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"invalid token": {err: ErrInvalidOrExpiredToken, want: "invalid_token"},
		"wrapped token": {err: fmt.Errorf("consume reset: %w", ErrInvalidOrExpiredToken), want: "invalid_token"},
		"store failure": {err: errors.New("connection reset"), want: "error"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := confirmResult(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
