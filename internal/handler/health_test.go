package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubConn bool

func (s stubConn) IsConnected() bool { return bool(s) }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name string
		conn ConnChecker
		want int
	}{
		{"stream disabled", nil, http.StatusOK},
		{"connected", stubConn(true), http.StatusOK},
		{"disconnected", stubConn(false), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.conn).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
