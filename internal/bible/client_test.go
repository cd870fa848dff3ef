package bible

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlabs/audiobible/internal/domain"
	"github.com/nlabs/audiobible/internal/log"
)

func TestFetchVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jsons/pt-ara.json", r.URL.Path)
		fmt.Fprint(w, `{
			"fullName": "Almeida Revista e Atualizada",
			"books": [
				{"name": "Gênesis", "abbrev": "gn", "chapters": 50},
				{"name": "Êxodo", "abbrev": "ex", "chapters": 40}
			]
		}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, log.NullLogger())
	v, err := client.FetchVersion(context.Background(), "pt", "ara")
	require.NoError(t, err)

	assert.Equal(t, "pt-ara", v.ID)
	assert.Equal(t, "pt", v.Language)
	assert.Equal(t, "ara", v.Version)
	assert.Equal(t, "Almeida Revista e Atualizada", v.FullName)
	require.Len(t, v.Books, 2)
	assert.Equal(t, domain.BibleBook{Name: "Gênesis", Abbrev: "gn", Chapters: 50}, v.Books[0])
	assert.Positive(t, v.SizeInBytes)
	assert.Positive(t, v.DownloadedAt)
}

func TestFetchVersionMissingDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	client := NewClient(srv.URL, log.NullLogger())
	_, err := client.FetchVersion(context.Background(), "pt", "nope")
	require.ErrorIs(t, err, domain.ErrFetchFailed)
}

func TestFetchVersionRejectsEmptyBookList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"fullName": "Empty", "books": []}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, log.NullLogger())
	_, err := client.FetchVersion(context.Background(), "pt", "ara")
	require.ErrorIs(t, err, domain.ErrFetchFailed)
}

func TestFetchVersionRejectsMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json at all`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, log.NullLogger())
	_, err := client.FetchVersion(context.Background(), "pt", "ara")
	require.ErrorIs(t, err, domain.ErrFetchFailed)
}
