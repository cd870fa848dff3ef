package player

import "github.com/nlabs/audiobible/internal/domain"

// Output is one playback slot. The engine owns two and alternates
// their roles: the active slot is audible and reports time, the
// inactive one preloads the next track.
type Output interface {
	// Load prepares a source for playback, replacing any previous one.
	Load(src domain.Source) error
	// Play starts or resumes playback. An error means playback did not
	// start; the engine treats only a nil return as a confirmed start.
	Play() error
	Pause()
	// Stop halts playback and releases the loaded source.
	Stop()
	// Seek jumps to an absolute position in seconds.
	Seek(seconds float64)
	// Position reports the current position and total duration in
	// seconds. Both are zero when nothing is loaded.
	Position() (pos, dur float64)
	// SetHandler registers the receiver of tick and end-of-track
	// events. Handlers are invoked from the output's own goroutine.
	SetHandler(h OutputHandler)
	// Close releases the slot entirely.
	Close() error
}

// OutputHandler receives playback events from an Output.
type OutputHandler interface {
	// OnTick fires on every time-progress update while playing.
	OnTick(pos, dur float64)
	// OnEnded fires once on natural completion of the loaded source.
	OnEnded()
}
