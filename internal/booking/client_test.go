package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() Request {
	return Request{
		PatientName:    "Ravi",
		Phone:          "919876543210",
		PackageName:    "CBC test",
		Area:           "Madhapur",
		Date:           "12-12-2025",
		Timeslot:       "7AM-9AM",
		Persons:        1,
		WhatsApp:       true,
		Agree:          true,
		IdempotencyKey: "outbox-1",
	}
}

func TestCreateBookingSendsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "outbox-1", r.Header.Get("Idempotency-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CBC test", body["packageName"])
		assert.Equal(t, "7AM-9AM", body["timeslot"])
		assert.Equal(t, float64(1), body["persons"])
		assert.Equal(t, true, body["whatsapp"])
		assert.Equal(t, true, body["agree"])
		_, hasKey := body["IdempotencyKey"]
		assert.False(t, hasKey)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"bk_1"}`))
	}))
	defer server.Close()

	client, err := New(Config{URL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)
	resp, err := client.CreateBooking(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"id":"bk_1"}`, string(resp.Body))
}

func TestCreateBookingClassifiesFailures(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantRejected bool
	}{
		{name: "bad request is rejected", status: http.StatusBadRequest, wantRejected: true},
		{name: "conflict is rejected", status: http.StatusConflict, wantRejected: true},
		{name: "throttled is retryable", status: http.StatusTooManyRequests},
		{name: "server error is retryable", status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			client, err := New(Config{URL: server.URL, HTTPClient: server.Client()})
			require.NoError(t, err)
			_, err = client.CreateBooking(context.Background(), sampleRequest())
			require.Error(t, err)
			assert.Equal(t, tt.wantRejected, errors.Is(err, ErrRejected))
		})
	}
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
