package player

// Metadata is what the platform's transport surface (lock screen,
// media-key overlay) displays for the current track.
type Metadata struct {
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
}

// SessionHandlers route platform transport controls back into the
// engine. Nil handlers are simply not registered.
type SessionHandlers struct {
	OnPlay     func()
	OnPause    func()
	OnNext     func()
	OnPrevious func()
	OnSeekTo   func(seconds float64)
}

// MediaSession integrates with the platform's lock-screen/media-key
// surface. Implementations live with the embedding application; the
// engine only pushes state into them.
type MediaSession interface {
	SetMetadata(m Metadata)
	SetPlaybackState(playing bool)
	SetHandlers(h SessionHandlers)
}

// NoopMediaSession is used when the platform offers no media-key surface.
type NoopMediaSession struct{}

func (NoopMediaSession) SetMetadata(Metadata)        {}
func (NoopMediaSession) SetPlaybackState(bool)       {}
func (NoopMediaSession) SetHandlers(SessionHandlers) {}
