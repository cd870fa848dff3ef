// Package bible resolves bible/version/book/chapter coordinates into
// canonical track identifiers and URLs, and orchestrates per-book and
// per-plan-day downloads.
package bible

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/nlabs/audiobible/internal/domain"
)

// downloads is the slice of the downloader the resolver needs.
type downloads interface {
	IsDownloaded(track *domain.Track) bool
	AreDownloaded(tracks []*domain.Track) domain.CacheStatus
	Download(ctx context.Context, track *domain.Track) error
	DownloadTracks(ctx context.Context, tracks []*domain.Track) int
}

// BookDownloadStatus summarizes cache presence for one book.
type BookDownloadStatus struct {
	Abbrev       string
	Total        int
	PendingCount int
	Pending      []string
}

// Service generates tracks from version structures and keeps version
// metadata in the store.
type Service struct {
	client       *Client
	store        domain.Store
	dl           downloads
	audioBaseURL string
	logger       *slog.Logger
}

func NewService(client *Client, store domain.Store, dl downloads, audioBaseURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:       client,
		store:        store,
		dl:           dl,
		audioBaseURL: strings.TrimRight(audioBaseURL, "/"),
		logger:       logger,
	}
}

// === Version metadata ===

// LoadVersion fetches a version structure from the CDN and persists it.
func (s *Service) LoadVersion(ctx context.Context, language, version string) (*domain.BibleVersion, error) {
	v, err := s.client.FetchVersion(ctx, language, version)
	if err != nil {
		s.logger.Error("failed to load bible version", "language", language, "version", version, "error", err)
		return nil, err
	}
	if err := s.store.PutBible(v); err != nil {
		s.logger.Error("failed to persist bible version", "id", v.ID, "error", err)
		return nil, err
	}
	s.logger.Info("bible version saved offline", "id", v.ID, "books", len(v.Books),
		"sizeMB", fmt.Sprintf("%.1f", float64(v.SizeInBytes)/1024/1024))
	return v, nil
}

// Version returns a saved version structure.
func (s *Service) Version(id string) (*domain.BibleVersion, error) {
	v, ok := s.store.GetBible(id)
	if !ok {
		return nil, fmt.Errorf("%w: bible version %s", domain.ErrNotFound, id)
	}
	return v, nil
}

// SavedVersions lists all versions available offline.
func (s *Service) SavedVersions() []*domain.BibleVersion {
	return s.store.AllBibles()
}

// RemoveVersion deletes a saved version structure.
func (s *Service) RemoveVersion(id string) error {
	return s.store.DeleteBible(id)
}

// === Track generation ===

// trackFor builds the canonical track for one chapter.
func (s *Service) trackFor(v *domain.BibleVersion, book *domain.BibleBook, chapter int) *domain.Track {
	abbrev := strings.ToUpper(book.Abbrev)
	ver := strings.ToUpper(v.Version)
	title := fmt.Sprintf("%s %d", book.Name, chapter)
	return &domain.Track{
		ID:       fmt.Sprintf("%s-%s-%d", v.Version, book.Abbrev, chapter),
		Book:     book.Name,
		Chapter:  chapter,
		Title:    title,
		FileName: fmt.Sprintf("%s %d.mp3", book.Name, chapter),
		URL: fmt.Sprintf("%s/%s/%s/%s/%s", s.audioBaseURL, v.Language, ver, abbrev,
			url.PathEscape(fmt.Sprintf("%s %d.mp3", abbrev, chapter))),
		Status: domain.TrackPending,
	}
}

// Tracks generates tracks for a version. An empty bookAbbrev covers
// every book; a non-nil chapters slice restricts to those chapters.
// Tracks already cached come back with status done.
func (s *Service) Tracks(v *domain.BibleVersion, bookAbbrev string, chapters []int) ([]*domain.Track, error) {
	books := v.Books
	if bookAbbrev != "" {
		book, err := s.FindBook(v, bookAbbrev)
		if err != nil {
			return nil, err
		}
		books = []domain.BibleBook{*book}
	}

	wanted := make(map[int]bool, len(chapters))
	for _, c := range chapters {
		wanted[c] = true
	}

	var tracks []*domain.Track
	for i := range books {
		book := &books[i]
		for chapter := 1; chapter <= book.Chapters; chapter++ {
			if len(wanted) > 0 && !wanted[chapter] {
				continue
			}
			track := s.trackFor(v, book, chapter)
			if s.dl.IsDownloaded(track) {
				track.Status = domain.TrackDone
			}
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

// DailyPlanTracks generates the tracks for one day of a reading plan.
// A day absent from the plan yields no tracks, with a logged warning.
func (s *Service) DailyPlanTracks(v *domain.BibleVersion, plan *domain.Plan, day int) []*domain.Track {
	var goal *domain.DailyGoal
	for i := range plan.Goals {
		if plan.Goals[i].Day == day {
			goal = &plan.Goals[i]
			break
		}
	}
	if goal == nil {
		s.logger.Warn("day not found on plan", "plan", plan.ID, "day", day)
		return nil
	}

	var tracks []*domain.Track
	for _, portion := range goal.Portions {
		if portion.BookIndex < 0 || portion.BookIndex >= len(v.Books) {
			s.logger.Warn("portion references unknown book", "plan", plan.ID, "bookIndex", portion.BookIndex)
			continue
		}
		track := s.trackFor(v, &v.Books[portion.BookIndex], portion.Chapter)
		if s.dl.IsDownloaded(track) {
			track.Status = domain.TrackDone
		}
		tracks = append(tracks, track)
	}
	return tracks
}

// FindBook resolves a book by exact abbreviation first, then by fuzzy
// match over book names ("1 sam", "genesis" with a typo, etc).
func (s *Service) FindBook(v *domain.BibleVersion, query string) (*domain.BibleBook, error) {
	for i := range v.Books {
		if strings.EqualFold(v.Books[i].Abbrev, query) {
			return &v.Books[i], nil
		}
	}

	names := make([]string, len(v.Books))
	for i, b := range v.Books {
		names[i] = b.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(query, names)
	if len(ranks) == 0 {
		return nil, fmt.Errorf("%w: book %q", domain.ErrNotFound, query)
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return &v.Books[best.OriginalIndex], nil
}

// === Download orchestration ===

// BooksDownloadStatus paints cache presence for every book, used by
// download-status overlays.
func (s *Service) BooksDownloadStatus(v *domain.BibleVersion) ([]BookDownloadStatus, error) {
	res := make([]BookDownloadStatus, 0, len(v.Books))
	for _, book := range v.Books {
		tracks, err := s.Tracks(v, book.Abbrev, nil)
		if err != nil {
			return nil, err
		}
		stats := s.dl.AreDownloaded(tracks)
		res = append(res, BookDownloadStatus{
			Abbrev:       book.Abbrev,
			Total:        stats.Total,
			PendingCount: stats.PendingCount,
			Pending:      stats.Pending,
		})
	}
	return res, nil
}

// DownloadBook downloads every not-yet-cached chapter of a book.
func (s *Service) DownloadBook(ctx context.Context, v *domain.BibleVersion, bookAbbrev string) ([]*domain.Track, error) {
	tracks, err := s.Tracks(v, bookAbbrev, nil)
	if err != nil {
		return nil, err
	}
	s.dl.DownloadTracks(ctx, pending(tracks))
	return tracks, nil
}

// DownloadPlanDay downloads the chapters assigned to one plan day.
func (s *Service) DownloadPlanDay(ctx context.Context, v *domain.BibleVersion, plan *domain.Plan, day int) []*domain.Track {
	tracks := s.DailyPlanTracks(v, plan, day)
	s.dl.DownloadTracks(ctx, pending(tracks))
	return tracks
}

// DownloadAll downloads the entire bible, book by book.
func (s *Service) DownloadAll(ctx context.Context, v *domain.BibleVersion) ([]*domain.Track, error) {
	var all []*domain.Track
	for _, book := range v.Books {
		tracks, err := s.DownloadBook(ctx, v, book.Abbrev)
		if err != nil {
			return all, err
		}
		all = append(all, tracks...)
	}
	return all, nil
}

func pending(tracks []*domain.Track) []*domain.Track {
	var out []*domain.Track
	for _, t := range tracks {
		if t.Status != domain.TrackDone {
			out = append(out, t)
		}
	}
	return out
}
