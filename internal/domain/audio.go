package domain

// CachedAudio is a persisted audio payload for one track.
// Its presence in the store is the sole source of truth for
// "is this track available offline".
type CachedAudio struct {
	ID           string `json:"id"`
	Blob         []byte `json:"blob"`
	SourceURL    string `json:"sourceUrl"`
	DownloadedAt int64  `json:"downloadedAt"` // unix millis
}

// SourceKind discriminates how a track will be played.
type SourceKind int

const (
	// SourceLocal plays from a cached blob.
	SourceLocal SourceKind = iota
	// SourceRemote streams from the track URL.
	SourceRemote
	// SourceUnavailable means neither cache nor network can serve the track.
	SourceUnavailable
)

// Source is the result of resolving a track against the cache.
type Source struct {
	Kind   SourceKind
	Blob   []byte // SourceLocal only
	URL    string // SourceRemote only
	Reason string // SourceUnavailable only
}

// LocalSource wraps a cached blob.
func LocalSource(blob []byte) Source {
	return Source{Kind: SourceLocal, Blob: blob}
}

// RemoteSource wraps a streamable URL.
func RemoteSource(url string) Source {
	return Source{Kind: SourceRemote, URL: url}
}

// UnavailableSource reports why a track cannot be played.
func UnavailableSource(reason string) Source {
	return Source{Kind: SourceUnavailable, Reason: reason}
}
