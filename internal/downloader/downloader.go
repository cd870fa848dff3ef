// Package downloader turns track descriptors into cached audio entries,
// evicting the oldest entries under space pressure and reporting batch
// progress to an observer.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nlabs/audiobible/internal/domain"
	"github.com/nlabs/audiobible/internal/space"
)

const (
	defaultEvictBatch  = 3
	defaultSettleDelay = 100 * time.Millisecond
	defaultHTTPTimeout = 60 * time.Second
)

// Service downloads remote audio into the store.
type Service struct {
	store  domain.Store
	space  domain.SpaceMonitor
	logger *slog.Logger

	// Client performs the audio fetches. Replaceable for tests.
	Client *http.Client
	// ThresholdMB is the free-space floor enforced before downloads.
	ThresholdMB int64
	// EvictBatch is how many entries one eviction pass removes.
	EvictBatch int
	// SettleDelay lets the platform's usage accounting catch up
	// between eviction passes.
	SettleDelay time.Duration

	observer domain.DownloadObserver
}

func NewService(store domain.Store, monitor domain.SpaceMonitor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		space:       monitor,
		logger:      logger,
		Client:      &http.Client{Timeout: defaultHTTPTimeout},
		ThresholdMB: space.DefaultThresholdMB,
		EvictBatch:  defaultEvictBatch,
		SettleDelay: defaultSettleDelay,
		observer:    domain.NoopObserver{},
	}
}

// SetObserver registers the receiver of batch progress events.
func (s *Service) SetObserver(obs domain.DownloadObserver) {
	if obs == nil {
		obs = domain.NoopObserver{}
	}
	s.observer = obs
}

// lookup resolves a track's cache entry, trying the canonical id first
// and the legacy fileName key second.
func (s *Service) lookup(track *domain.Track) (*domain.CachedAudio, bool) {
	if track.ID != "" {
		if entry, ok := s.store.GetAudio(track.ID); ok {
			return entry, true
		}
	}
	if track.FileName != "" {
		if entry, ok := s.store.GetAudio(track.FileName); ok {
			return entry, true
		}
	}
	return nil, false
}

// IsDownloaded reports whether the track's audio is cached.
func (s *Service) IsDownloaded(track *domain.Track) bool {
	_, ok := s.lookup(track)
	return ok
}

// Resolve returns the playable source for a track: the cached blob when
// present, the remote URL otherwise.
func (s *Service) Resolve(track *domain.Track) domain.Source {
	if entry, ok := s.lookup(track); ok {
		return domain.LocalSource(entry.Blob)
	}
	if track.URL != "" {
		return domain.RemoteSource(track.URL)
	}
	return domain.UnavailableSource("track has no cached blob and no remote URL")
}

// EnsureFreeSpace evicts oldest entries until free space is above the
// threshold. An empty cache terminates the loop: with nothing left to
// evict the store is treated as implicitly safe.
func (s *Service) EnsureFreeSpace(ctx context.Context) error {
	for !s.space.IsSafe(s.ThresholdMB) {
		if s.store.AudioCount() == 0 {
			return nil
		}
		removed := s.RemoveOldest(s.EvictBatch)
		if len(removed) == 0 {
			return fmt.Errorf("%w: eviction made no progress", domain.ErrInsufficientSpace)
		}
		s.logger.Warn("low storage, evicted oldest audio",
			"availableMB", s.space.AvailableMB(), "removed", removed)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.SettleDelay):
		}
	}
	return nil
}

// Download fetches a single track and persists it. Already-cached
// tracks are a no-op beyond marking the status done; the network is
// touched at most once per cached entry.
func (s *Service) Download(ctx context.Context, track *domain.Track) error {
	if s.IsDownloaded(track) {
		track.Status = domain.TrackDone
		return nil
	}

	if err := s.EnsureFreeSpace(ctx); err != nil {
		return err
	}

	track.Status = domain.TrackDownloading
	s.logger.Info("downloading", "track", track.Title, "url", track.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.URL, nil)
	if err != nil {
		track.Status = domain.TrackError
		return fmt.Errorf("%w: %s: %v", domain.ErrFetchFailed, track.Title, err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		track.Status = domain.TrackError
		return fmt.Errorf("%w: %s: %v", domain.ErrFetchFailed, track.Title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		track.Status = domain.TrackError
		return fmt.Errorf("%w: %s: status %d", domain.ErrFetchFailed, track.Title, resp.StatusCode)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		track.Status = domain.TrackError
		return fmt.Errorf("%w: %s: %v", domain.ErrFetchFailed, track.Title, err)
	}

	entry := &domain.CachedAudio{
		ID:           track.Key(),
		Blob:         blob,
		SourceURL:    track.URL,
		DownloadedAt: time.Now().UnixMilli(),
	}
	if err := s.store.PutAudio(entry); err != nil {
		track.Status = domain.TrackError
		return err
	}

	track.Status = domain.TrackDone
	return nil
}

// DownloadTracks downloads a batch strictly sequentially, in input
// order. A per-track failure marks that track's status error and the
// batch continues; partial completion is expected and non-fatal.
// Returns the number of tracks that finished in the done state.
func (s *Service) DownloadTracks(ctx context.Context, tracks []*domain.Track) int {
	total := len(tracks)
	downloaded := 0

	s.observer.OnProgress(domain.DownloadProgress{
		Downloaded: 0, Total: total, Status: domain.BatchRunning,
	})

	failed := 0
	for _, track := range tracks {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := s.Download(ctx, track); err != nil {
			failed++
			s.logger.Error("track download failed", "track", track.Title, "error", err)
			s.observer.OnProgress(domain.DownloadProgress{
				Downloaded: downloaded, Total: total,
				Status: domain.BatchRunning, CurrentTrack: track,
			})
			continue
		}
		downloaded++
		s.observer.OnProgress(domain.DownloadProgress{
			Downloaded: downloaded, Total: total,
			Status: domain.BatchRunning, CurrentTrack: track,
		})
	}

	final := domain.BatchCompleted
	if failed > 0 {
		final = domain.BatchError
	}
	s.observer.OnProgress(domain.DownloadProgress{
		Downloaded: downloaded, Total: total, Status: final,
	})
	return downloaded
}

// AreDownloaded paints cache presence for a set of tracks.
func (s *Service) AreDownloaded(tracks []*domain.Track) domain.CacheStatus {
	var status domain.CacheStatus
	for _, track := range tracks {
		if s.IsDownloaded(track) {
			status.Total++
		} else {
			status.PendingCount++
			status.Pending = append(status.Pending, track.ID)
		}
	}
	return status
}

// RemoveOldest evicts up to n entries by downloadedAt ascending and
// returns the removed keys.
func (s *Service) RemoveOldest(n int) []string {
	entries := s.store.AudioByDownloadTime()
	var removed []string
	for i := 0; i < n && i < len(entries); i++ {
		if err := s.store.DeleteAudio(entries[i].ID); err != nil {
			s.logger.Error("eviction failed", "id", entries[i].ID, "error", err)
			continue
		}
		removed = append(removed, entries[i].ID)
	}
	if len(removed) > 0 {
		s.logger.Info("removed oldest cached audio", "ids", removed)
	}
	return removed
}

// RemoveByID deletes one cached entry.
func (s *Service) RemoveByID(id string) error {
	return s.store.DeleteAudio(id)
}

// DownloadedCount returns the number of cached chapters.
func (s *Service) DownloadedCount() int {
	return s.store.AudioCount()
}
