package lock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stay-lock-sync/backend/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.NukiConfig{
		BaseURL: server.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
	}, zap.NewNop().Sugar())
}

func TestListParsesAuthorizations(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/smartlock/123/auth", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"a1","name":"Guests","type":13,"allowedFromDate":"2025-06-10T13:00:00.000Z"}]`))
	}))

	auths, err := client.List(context.Background(), 123)
	require.NoError(t, err)
	require.Len(t, auths, 1)
	assert.Equal(t, "a1", auths[0].ID)
	assert.Equal(t, AuthTypeKeypad, auths[0].Type)
}

func TestListEmptyResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"no content", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			auths, err := client.List(context.Background(), 123)
			require.NoError(t, err)
			assert.Empty(t, auths)
		})
	}
}

func TestListAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))

	_, err := client.List(context.Background(), 123)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCreatePayload(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/smartlock/auth", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.Create(context.Background(), 123, "Guests", 246810, AllWeekdays)
	require.NoError(t, err)

	assert.Equal(t, "Guests", payload["name"])
	assert.Equal(t, float64(AuthTypeKeypad), payload["type"])
	assert.Equal(t, float64(246810), payload["code"])
	assert.Equal(t, float64(AllWeekdays), payload["allowedWeekDays"])
	assert.Equal(t, []any{float64(123)}, payload["smartlockIds"])
}

func TestCreateConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	err := client.Create(context.Background(), 123, "Guests", 246810, AllWeekdays)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSetWindowPayload(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/smartlock/123/auth/a1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))

	start := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)

	err := client.SetWindow(context.Background(), 123, "a1", &start, &end)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-10T13:00:00.000Z", payload["allowedFromDate"])
	assert.Equal(t, "2025-06-12T09:00:00.000Z", payload["allowedUntilDate"])
	assert.Equal(t, float64(AllWeekdays), payload["allowedWeekDays"])
}

func TestSetWindowClearsWithNulls(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SetWindow(context.Background(), 123, "a1", nil, nil)
	require.NoError(t, err)

	from, ok := payload["allowedFromDate"]
	require.True(t, ok)
	assert.Nil(t, from)
	until, ok := payload["allowedUntilDate"]
	require.True(t, ok)
	assert.Nil(t, until)
}

func TestForceSync(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/smartlock/123/sync", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))

	require.NoError(t, client.ForceSync(context.Background(), 123))
}

func TestAuthorizationWindow(t *testing.T) {
	from := "2025-06-10T13:00:00.000Z"
	until := "2025-06-12T09:00:00"

	tests := []struct {
		name string
		auth Authorization
		want bool
	}{
		{"both bounds", Authorization{AllowedFromDate: &from, AllowedUntilDate: &until}, true},
		{"no bounds", Authorization{}, false},
		{"start only", Authorization{AllowedFromDate: &from}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.auth.Window()
			if !tt.want {
				assert.Nil(t, w)
				return
			}
			require.NotNil(t, w)
		})
	}

	auth := Authorization{AllowedFromDate: &from, AllowedUntilDate: &until}
	w := auth.Window()
	require.NotNil(t, w)
	assert.Equal(t, time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC), w.End)
}
