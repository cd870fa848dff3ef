package bible

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nlabs/audiobible/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Client fetches bible version structure documents from the CDN.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// versionDoc is the CDN wire format for a version structure document.
type versionDoc struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	FullName string `json:"fullName"`
	Books    []struct {
		Name     string `json:"name"`
		Abbrev   string `json:"abbrev"`
		Chapters int    `json:"chapters"`
	} `json:"books"`
}

// FetchVersion downloads the book/chapter structure for one
// language-version pair, e.g. ("pt", "ara"). Absence or a malformed
// document is a hard failure for version selection.
func (c *Client) FetchVersion(ctx context.Context, language, version string) (*domain.BibleVersion, error) {
	id := fmt.Sprintf("%s-%s", language, version)
	reqURL := fmt.Sprintf("%s/jsons/%s.json", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetching bible version", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrFetchFailed, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", domain.ErrFetchFailed, id, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrFetchFailed, id, err)
	}

	var doc versionDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: invalid format: %v", domain.ErrFetchFailed, id, err)
	}
	if len(doc.Books) == 0 {
		return nil, fmt.Errorf("%w: %s: document lists no books", domain.ErrFetchFailed, id)
	}

	return mapVersion(id, language, version, &doc, int64(len(body))), nil
}

func mapVersion(id, language, version string, doc *versionDoc, size int64) *domain.BibleVersion {
	v := &domain.BibleVersion{
		ID:           id,
		Language:     language,
		Version:      version,
		FullName:     doc.FullName,
		DownloadedAt: time.Now().UnixMilli(),
		SizeInBytes:  size,
	}
	if doc.Language != "" {
		v.Language = doc.Language
	}
	if doc.Version != "" {
		v.Version = doc.Version
	}
	v.Books = make([]domain.BibleBook, 0, len(doc.Books))
	for _, b := range doc.Books {
		v.Books = append(v.Books, domain.BibleBook{
			Name:     b.Name,
			Abbrev:   b.Abbrev,
			Chapters: b.Chapters,
		})
	}
	return v
}
