package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToHTTP(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrPresenceStore, http.StatusServiceUnavailable},
		{fmt.Errorf("publish: %w", ErrInvalidInput), http.StatusBadRequest},
		{ErrConnClosed, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := ToHTTP(c.err); got != c.want {
			t.Fatalf("ToHTTP(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
