package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeams_SendPostsCard(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res, err := NewTeams("", 0).Send(context.Background(), srv.URL, "Build done", "All green")
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.False(t, res.Truncated)

	assert.Equal(t, "message", got["type"])
	att := got["attachments"].([]any)[0].(map[string]any)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", att["contentType"])
	assert.Contains(t, att, "contentUrl")
	body := att["content"].(map[string]any)["body"].([]any)
	require.Len(t, body, 3)
	assert.Equal(t, "Build done", body[0].(map[string]any)["text"])
	assert.Equal(t, "All green", body[1].(map[string]any)["text"])
}

func TestTeams_DefaultURL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	defer srv.Close()

	_, err := NewTeams(srv.URL, 0).Send(context.Background(), " ", "t", "c")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestTeams_EmptyWebhook(t *testing.T) {
	_, err := NewTeams("", 0).Send(context.Background(), "", "t", "c")
	assert.ErrorIs(t, err, ErrEmptyWebhook)
}

func TestTeams_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad card\n"))
	}))
	defer srv.Close()

	_, err := NewTeams("", 0).Send(context.Background(), srv.URL, "t", "c")
	assert.EqualError(t, err, "HTTP 400: bad card")
}

func TestTeams_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	teams := NewTeams("", 1)
	_, err := teams.Send(context.Background(), srv.URL, "t", "c")
	require.NoError(t, err)
	_, err = teams.Send(context.Background(), srv.URL, "t", "c")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestTruncate(t *testing.T) {
	short, cut := truncate("hello")
	assert.Equal(t, "hello", short)
	assert.False(t, cut)

	long := strings.Repeat("é", MaxContentChars+5)
	out, cut := truncate(long)
	assert.True(t, cut)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("é", MaxContentChars)+"..."))
	assert.Contains(t, out, "original length: 24005 chars")
}
