package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/mermaidnest/internal/config"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

func newTestClient(url string) *Client {
	return NewClient(config.ServerConfig{
		URL:        url,
		Token:      "secret",
		DeviceName: "desk",
		Timeout:    5 * time.Second,
	}, loggy.Discard())
}

func TestClient_FullSync(t *testing.T) {
	checkpoint := int64(400)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sync/full", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "desk", r.Header.Get("X-Device-Name"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))

		var body FullSyncRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Diagrams.Diagrams, 1) {
			assert.Equal(t, "d1", body.Diagrams.Diagrams[0].ClientID)
		}
		if assert.NotNil(t, body.Templates.LastSyncAt) {
			assert.Equal(t, checkpoint, *body.Templates.LastSyncAt)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"diagrams": {"diagrams": [{"clientId": "d1", "name": "A", "code": "graph TD; A-->B", "clientTimestamp": 100}]},
			"templates": {"collections": [], "favorites": [{"templateId": "t2", "clientTimestamp": 3}]},
			"settings": {"settings": {"keyValueStore": {"mermaid.editor.wrap": "true"}}},
			"syncedAt": 500
		}`))
	}))
	defer server.Close()

	req := &FullSyncRequest{
		Diagrams:  DiagramsSection{Diagrams: []DiagramDto{{ClientID: "d1", Name: "A", Code: "graph TD; A-->B", ClientTimestamp: 100}}, LastSyncAt: &checkpoint},
		Templates: TemplatesSection{LastSyncAt: &checkpoint},
		Settings:  SettingsSection{LastSyncAt: &checkpoint},
	}

	ctx := loggy.WithRequestID(context.Background(), "req-1")
	resp, err := newTestClient(server.URL).FullSync(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(500), resp.SyncedAt)
	require.Len(t, resp.Diagrams.Diagrams, 1)
	assert.Equal(t, "graph TD; A-->B", resp.Diagrams.Diagrams[0].Code)
	require.NotNil(t, resp.Settings.Settings)
	assert.Equal(t, "true", resp.Settings.Settings.KeyValueStore["mermaid.editor.wrap"])
	assert.Equal(t, 3, resp.ItemCount())
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantType    SyncErrorType
	}{
		{"unauthorized", http.StatusUnauthorized, `{"statusCode":401,"message":"Invalid token","error":"Unauthorized"}`, "Invalid token", SyncErrorTypeAuth},
		{"forbidden", http.StatusForbidden, `{"message":"nope"}`, "nope", SyncErrorTypeAuth},
		{"server error without body", http.StatusBadGateway, ``, "Bad Gateway", SyncErrorTypeServer},
		{"validation", http.StatusBadRequest, `{"statusCode":400,"message":"diagrams must be an array"}`, "diagrams must be an array", SyncErrorTypeClient},
		{"mismatched body status", http.StatusInternalServerError, `{"statusCode":200,"message":"boom"}`, "boom", SyncErrorTypeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).FullSync(context.Background(), &FullSyncRequest{})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantType, ClassifyError(err))
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url)

	_, err := client.FullSync(context.Background(), &FullSyncRequest{})
	require.Error(t, err)
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.Equal(t, SyncErrorTypeNetwork, ClassifyError(err))

	assert.Error(t, client.Ping(context.Background()))
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := newTestClient("").FullSync(context.Background(), &FullSyncRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, SyncErrorTypeClient, ClassifyError(err))
}

func TestClient_PingAndVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/api/auth/verify":
			if r.Header.Get("Authorization") == "Bearer secret" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.Ping(context.Background()), "any HTTP answer means reachable")

	ok, err := client.VerifyToken(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	stranger := NewClient(config.ServerConfig{URL: server.URL, Token: "wrong", Timeout: time.Second}, loggy.Discard())
	ok, err = stranger.VerifyToken(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewLimiter(t *testing.T) {
	unlimited := newLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	limited := newLimiter(60, 2)
	assert.True(t, limited.Allow())
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, SyncErrorType(""), ClassifyError(nil))
	assert.Equal(t, SyncErrorTypeUnknown, ClassifyError(errors.New("boom")))
	assert.Equal(t, SyncErrorTypeServer, ClassifyError(&APIError{StatusCode: 503}))
}
