package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PostsToGateway(t *testing.T) {
	var received publishRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/posts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := NewPublisher(server.URL, slog.Default())

	err := p.Publish(context.Background(), "org1", "instagram", "Book with us!")
	require.NoError(t, err)

	assert.Equal(t, "org1", received.OrgID)
	assert.Equal(t, "instagram", received.Platform)
	assert.Equal(t, "Book with us!", received.Body)
}

func TestPublisher_GatewayErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "platform not linked", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	p := NewPublisher(server.URL, slog.Default())

	err := p.Publish(context.Background(), "org1", "instagram", "Book with us!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "platform not linked")
}
