package crossref

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NaturalHistoryMuseum/Pipe/config"
)

func testFetcher(baseURL string) *Fetcher {
	cfg := &config.Config{
		CrossrefBaseURL: baseURL,
		CrossrefMailto:  "ops@example.org",
	}
	return NewFetcher(cfg, zap.NewNop())
}

func TestQueryBest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "A revision of Carabidae", q.Get("query.title"))
		assert.Equal(t, "JR Smith", q.Get("query.author"))
		assert.Equal(t, "Journal of Coleoptera", q.Get("query.container-title"))
		assert.Equal(t, "1", q.Get("rows"))
		assert.Equal(t, "ops@example.org", q.Get("mailto"))
		assert.NotEmpty(t, q.Get("select"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"message": {
				"total-results": 42,
				"items": [{
					"DOI": "10.1234/abc",
					"title": ["A revision of Carabidae"],
					"type": "journal-article",
					"author": [{"family": "Smith", "given": "J.R."}],
					"container-title": ["Journal of Coleoptera"],
					"issued": {"date-parts": [[2021, 3, 2]]}
				}]
			}
		}`))
	}))
	defer server.Close()

	work, err := testFetcher(server.URL).QueryBest("A revision of Carabidae", "JR Smith", "Journal of Coleoptera")

	require.NoError(t, err)
	require.NotNil(t, work)
	assert.Equal(t, "10.1234/abc", work.DOI)
	assert.Equal(t, "A revision of Carabidae", work.BestTitle())
	require.Len(t, work.Author, 1)
	assert.Equal(t, "Smith", work.Author[0].Family)
	assert.Equal(t, [][]int{{2021, 3, 2}}, work.Issued.DateParts)
}

func TestQueryBestOmitsEmptyParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("query.author"))
		assert.False(t, q.Has("query.container-title"))
		w.Write([]byte(`{"status": "ok", "message": {"total-results": 0, "items": []}}`))
	}))
	defer server.Close()

	work, err := testFetcher(server.URL).QueryBest("some title", "", "")
	require.NoError(t, err)
	assert.Nil(t, work)
}

func TestQueryBestZeroResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "message": {"total-results": 0, "items": []}}`))
	}))
	defer server.Close()

	work, err := testFetcher(server.URL).QueryBest("unknown title", "", "")

	require.NoError(t, err)
	assert.Nil(t, work)
}

func TestQueryBestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	work, err := testFetcher(server.URL).QueryBest("some title", "", "")

	require.Error(t, err)
	assert.Nil(t, work)
}
