package domain

// BatchStatus describes a batch download's overall state.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchError     BatchStatus = "error"
)

// DownloadProgress is emitted after every state change within a batch
// download, including once before any work and once after the loop.
type DownloadProgress struct {
	Downloaded   int // tracks finished so far
	Total        int
	Status       BatchStatus
	CurrentTrack *Track // nil on the initial and final events
}

// DownloadObserver receives progress updates during batch downloads.
type DownloadObserver interface {
	OnProgress(p DownloadProgress)
}

// NoopObserver discards progress updates (for tests and background batches).
type NoopObserver struct{}

func (NoopObserver) OnProgress(DownloadProgress) {}

// CacheStatus summarizes cache presence for a set of tracks.
type CacheStatus struct {
	Total        int      // tracks already cached
	PendingCount int      // tracks still missing
	Pending      []string // ids of the missing tracks
}
