package memos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:           srv.URL,
		Token:             "secret-token",
		RequestsPerSecond: 1000,
	}, zap.NewNop().Sugar())
}

func TestListAllFollowsPageTokens(t *testing.T) {
	var requests []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		page := memoPage{}
		if r.URL.Query().Get("pageToken") == "" {
			page.Memos = []memo{
				{Name: "memos/1", Content: "first", State: "NORMAL"},
				{Name: "memos/2", Content: "gone", State: "ARCHIVED"},
			}
			page.NextPageToken = "page-2"
		} else {
			page.Memos = []memo{{Name: "memos/3", Content: "third", State: "NORMAL"}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	notes, err := client.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 3)

	assert.Equal(t, "1", notes[0].RemoteID)
	assert.Equal(t, "first", notes[0].Content)
	assert.False(t, notes[0].Deleted)
	assert.True(t, notes[1].Deleted)
	assert.Equal(t, "3", notes[2].RemoteID)

	require.Len(t, requests, 2)
	assert.Contains(t, requests[1], "pageToken=page-2")
}

func TestCreatePostsContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/memos", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello from driftpad", body["content"])

		require.NoError(t, json.NewEncoder(w).Encode(memo{
			Name: "memos/42", Content: body["content"], State: "NORMAL",
		}))
	})

	note, err := client.Create(context.Background(), "hello from driftpad")
	require.NoError(t, err)
	assert.Equal(t, "42", note.RemoteID)
	assert.Equal(t, "hello from driftpad", note.Content)
}

func TestUpdatePatchesByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/memos/42", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(memo{
			Name: "memos/42", Content: "edited", State: "NORMAL",
		}))
	})

	note, err := client.Update(context.Background(), "42", "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", note.Content)
}

func TestDeleteToleratesMissingNote(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.Delete(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	})

	_, err := client.ListAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "upstream exploded")
}
