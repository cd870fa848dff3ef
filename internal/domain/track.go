package domain

import "fmt"

// TrackStatus tracks a chapter's download lifecycle.
type TrackStatus int

const (
	TrackPending TrackStatus = iota
	TrackDownloading
	TrackDone
	TrackError
)

func (s TrackStatus) String() string {
	switch s {
	case TrackPending:
		return "pending"
	case TrackDownloading:
		return "downloading"
	case TrackDone:
		return "done"
	case TrackError:
		return "error"
	default:
		return "unknown"
	}
}

// Track represents one playable chapter of audio.
// ID is the canonical cache key; FileName remains as a legacy fallback key
// for entries cached before IDs were introduced.
type Track struct {
	ID       string // e.g. "ARA-JER-1"
	Book     string // display name, e.g. "Jeremias"
	Chapter  int    // 1-based
	Title    string // "Jeremias 1"
	FileName string // "Jeremias 1.mp3"
	URL      string // remote source
	Status   TrackStatus
}

// Key returns the cache lookup key for the track.
func (t *Track) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.FileName
}

func (t *Track) String() string {
	return fmt.Sprintf("%s (%s)", t.Title, t.ID)
}
