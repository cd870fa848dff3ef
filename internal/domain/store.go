package domain

// Store persists the three record categories: cached audio blobs,
// reading plans and bible versions. Each operation is atomic at the
// single-record level; no cross-record transactions exist.
type Store interface {
	// === Cached audio ===
	PutAudio(entry *CachedAudio) error
	GetAudio(key string) (*CachedAudio, bool)
	DeleteAudio(key string) error
	AudioKeys() []string
	// AudioByDownloadTime returns all entries ordered oldest-first,
	// used for eviction decisions.
	AudioByDownloadTime() []*CachedAudio
	AudioCount() int
	ClearAudio() error

	// === Reading plans ===
	PutPlan(plan *Plan) error
	GetPlan(id string) (*Plan, bool)
	AllPlans() []*Plan
	DeletePlan(id string) error

	// === Bible versions ===
	PutBible(v *BibleVersion) error
	GetBible(id string) (*BibleVersion, bool)
	AllBibles() []*BibleVersion
	DeleteBible(id string) error

	// === Lifecycle ===
	Close() error
}

// SpaceMonitor estimates free device storage. Implementations never
// fail; all error paths degrade to a conservative estimate.
type SpaceMonitor interface {
	AvailableMB() int64
	IsSafe(thresholdMB int64) bool
}
