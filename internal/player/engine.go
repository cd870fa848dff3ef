// Package player implements the dual-slot gapless playback engine.
//
// Two output slots alternate roles: exactly one is active (audible,
// reporting time) while the other preloads the next playlist entry.
// On natural track completion the roles swap, so the next track starts
// from an already-buffered source with no audible gap.
package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/nlabs/audiobible/internal/domain"
)

const (
	// retryDelay is the pause before re-attempting a failed start on
	// the swapped-in slot.
	retryDelay = 500 * time.Millisecond

	artistName = "Audio Bible"
)

// Resolver turns a track into a playable source, downloading on demand.
// *downloader.Service satisfies it.
type Resolver interface {
	Resolve(track *domain.Track) domain.Source
	Download(ctx context.Context, track *domain.Track) error
}

// TimeUpdate is the engine's published playback position.
type TimeUpdate struct {
	CurrentTime float64
	Duration    float64
}

// Engine owns the two playback slots and the playlist cursor.
type Engine struct {
	slots    [2]Output
	resolver Resolver
	session  MediaSession
	logger   *slog.Logger

	// guarded by calls being serialized through the slot handlers and
	// public methods; see lock()/unlock() below
	mu chan struct{}

	active     int // index of the audible slot
	playlist   []*domain.Track
	index      int
	current    *domain.Track
	isPlaying  bool
	preload    bool
	preloadKey string // suppresses re-preloading the same track

	currentTrack *Stream[*domain.Track]
	playing      *Stream[bool]
	progress     *Stream[TimeUpdate]
	trackEnded   *Queue[*domain.Track]
}

// NewEngine wires two output slots to a resolver and media session.
// A nil session gets the no-op implementation.
func NewEngine(slots [2]Output, resolver Resolver, session MediaSession, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if session == nil {
		session = NoopMediaSession{}
	}
	e := &Engine{
		slots:        slots,
		resolver:     resolver,
		session:      session,
		logger:       logger,
		mu:           make(chan struct{}, 1),
		preload:      true,
		currentTrack: NewStream[*domain.Track](),
		playing:      NewStream[bool](),
		progress:     NewStream[TimeUpdate](),
		trackEnded:   NewQueue[*domain.Track](),
	}
	for i := range slots {
		slots[i].SetHandler(&slotHandler{engine: e, slot: i})
	}
	e.registerSessionHandlers()
	return e
}

func (e *Engine) lock()   { e.mu <- struct{}{} }
func (e *Engine) unlock() { <-e.mu }

// SetPreload toggles speculative buffering of the next playlist entry.
func (e *Engine) SetPreload(enabled bool) {
	e.lock()
	defer e.unlock()
	e.preload = enabled
}

// === Published state ===

func (e *Engine) CurrentTrack() *Stream[*domain.Track] { return e.currentTrack }
func (e *Engine) Playing() *Stream[bool]               { return e.playing }
func (e *Engine) Progress() *Stream[TimeUpdate]        { return e.progress }
func (e *Engine) TrackEnded() *Queue[*domain.Track]    { return e.trackEnded }

// === Playback ===

// PlayTrack stops any current playback, resolves the track against the
// cache, starts it on the inactive slot and swaps roles only once the
// start is confirmed. A non-nil playlist replaces the current one.
func (e *Engine) PlayTrack(ctx context.Context, track *domain.Track, playlist []*domain.Track, startIndex int) error {
	e.lock()
	defer e.unlock()

	e.stopLocked()

	if playlist != nil {
		e.playlist = playlist
		e.index = startIndex
	}

	src := e.resolveSource(ctx, track)
	target := e.slots[1-e.active]

	if err := target.Load(src); err != nil {
		e.logger.Error("load failed", "track", track.Title, "error", err)
		return err
	}
	if err := target.Play(); err != nil {
		// The active slot was never touched, so a failed start leaves
		// no flash of silence behind.
		e.logger.Error("initial play failed", "track", track.Title, "error", err)
		return err
	}

	e.swapSlotsLocked()
	e.current = track
	e.isPlaying = true
	e.currentTrack.Publish(track)
	e.playing.Publish(true)
	e.updateSession(track)
	e.session.SetPlaybackState(true)

	go e.preloadNext()
	return nil
}

// PlayPlaylist starts playback at startIndex of the given tracks.
func (e *Engine) PlayPlaylist(ctx context.Context, tracks []*domain.Track, startIndex int) error {
	if len(tracks) == 0 {
		return domain.ErrNotFound
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		startIndex = 0
	}
	return e.PlayTrack(ctx, tracks[startIndex], tracks, startIndex)
}

// Play resumes the active slot.
func (e *Engine) Play() {
	e.lock()
	defer e.unlock()
	if err := e.slots[e.active].Play(); err != nil {
		e.logger.Warn("play failed", "error", err)
		return
	}
	e.isPlaying = true
	e.playing.Publish(true)
	e.session.SetPlaybackState(true)
}

// Pause pauses the active slot.
func (e *Engine) Pause() {
	e.lock()
	defer e.unlock()
	e.slots[e.active].Pause()
	e.isPlaying = false
	e.playing.Publish(false)
	e.session.SetPlaybackState(false)
}

// Toggle flips between play and pause.
func (e *Engine) Toggle() {
	e.lock()
	playing := e.isPlaying
	e.unlock()
	if playing {
		e.Pause()
	} else {
		e.Play()
	}
}

// Stop halts both slots and releases their sources.
func (e *Engine) Stop() {
	e.lock()
	defer e.unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.slots[0].Stop()
	e.slots[1].Stop()
	e.preloadKey = ""
	if e.isPlaying {
		e.isPlaying = false
		e.playing.Publish(false)
		e.session.SetPlaybackState(false)
	}
}

// SeekTo jumps to an absolute position, clamped into [0, duration].
// The time tuple is republished immediately so UI feedback does not
// wait for the next natural tick.
func (e *Engine) SeekTo(seconds float64) {
	e.lock()
	defer e.unlock()
	active := e.slots[e.active]
	_, dur := active.Position()
	if seconds < 0 {
		seconds = 0
	}
	if dur > 0 && seconds > dur {
		seconds = dur
	}
	active.Seek(seconds)
	pos, dur := active.Position()
	e.progress.Publish(TimeUpdate{CurrentTime: pos, Duration: dur})
}

// Skip moves the position by delta seconds, clamped into [0, duration].
func (e *Engine) Skip(delta float64) {
	e.lock()
	pos, _ := e.slots[e.active].Position()
	e.unlock()
	e.SeekTo(pos + delta)
}

// === Playlist navigation ===

// Next advances the playlist cursor circularly and plays the new entry.
func (e *Engine) Next() {
	e.lock()
	if len(e.playlist) == 0 {
		e.unlock()
		return
	}
	e.index = (e.index + 1) % len(e.playlist)
	track := e.playlist[e.index]
	e.unlock()
	if err := e.PlayTrack(context.Background(), track, nil, 0); err != nil {
		e.logger.Warn("next failed", "track", track.Title, "error", err)
	}
}

// Previous retreats the playlist cursor circularly and plays the new entry.
func (e *Engine) Previous() {
	e.lock()
	if len(e.playlist) == 0 {
		e.unlock()
		return
	}
	e.index = (e.index - 1 + len(e.playlist)) % len(e.playlist)
	track := e.playlist[e.index]
	e.unlock()
	if err := e.PlayTrack(context.Background(), track, nil, 0); err != nil {
		e.logger.Warn("previous failed", "track", track.Title, "error", err)
	}
}

// HasNext reports whether a further playlist entry exists.
func (e *Engine) HasNext() bool {
	e.lock()
	defer e.unlock()
	return len(e.playlist) > 1 && e.index < len(e.playlist)-1
}

// HasPrevious reports whether an earlier playlist entry exists.
func (e *Engine) HasPrevious() bool {
	e.lock()
	defer e.unlock()
	return len(e.playlist) > 1 && e.index > 0
}

// Activate refreshes media-session handlers and metadata, for use when
// the embedding application returns from a backgrounded state.
func (e *Engine) Activate() {
	e.registerSessionHandlers()
	e.lock()
	track := e.current
	e.unlock()
	if track != nil {
		e.updateSession(track)
	}
}

// Close releases both slots.
func (e *Engine) Close() error {
	e.Stop()
	var firstErr error
	for _, slot := range e.slots {
		if err := slot.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// === Source resolution ===

// resolveSource prefers the cached blob, falls back to a synchronous
// download and re-lookup, and streams from the remote URL as the last
// resort.
func (e *Engine) resolveSource(ctx context.Context, track *domain.Track) domain.Source {
	src := e.resolver.Resolve(track)
	if src.Kind == domain.SourceLocal {
		e.logger.Debug("playing offline", "track", track.Title)
		return src
	}
	if err := e.resolver.Download(ctx, track); err != nil {
		e.logger.Warn("download failed, falling back to streaming", "track", track.Title, "error", err)
	}
	src = e.resolver.Resolve(track)
	if src.Kind == domain.SourceRemote {
		e.logger.Info("streaming online", "track", track.Title)
	}
	return src
}

// === Dual-slot mechanics ===

// swapSlotsLocked flips which slot is active and cleans the demoted one.
func (e *Engine) swapSlotsLocked() {
	e.active = 1 - e.active
	e.slots[1-e.active].Stop()
}

// onTick republishes time progress for the active slot only.
func (e *Engine) onTick(slot int, pos, dur float64) {
	e.lock()
	if slot != e.active {
		e.unlock()
		return
	}
	e.unlock()
	e.progress.Publish(TimeUpdate{CurrentTime: pos, Duration: dur})
}

// onEnded handles natural completion of the active slot: emit the
// track-ended event, then either stop cleanly at the playlist's end or
// swap in the preloaded slot for a gapless transition.
func (e *Engine) onEnded(slot int) {
	e.lock()
	if slot != e.active {
		e.unlock()
		return
	}

	if e.current != nil {
		e.trackEnded.Publish(e.current)
	}
	e.isPlaying = false
	e.playing.Publish(false)

	if len(e.playlist) == 0 || e.index >= len(e.playlist)-1 {
		e.stopLocked()
		e.session.SetPlaybackState(false)
		e.unlock()
		return
	}

	e.index = (e.index + 1) % len(e.playlist)
	next := e.playlist[e.index]

	e.swapSlotsLocked()
	active := e.slots[e.active]

	if err := active.Play(); err != nil {
		e.logger.Warn("handoff play failed, retrying", "track", next.Title, "error", err)
		e.scheduleRetryLocked(next)
	} else {
		e.isPlaying = true
		e.playing.Publish(true)
	}

	e.current = next
	e.currentTrack.Publish(next)
	e.updateSession(next)
	e.session.SetPlaybackState(e.isPlaying)
	e.unlock()

	go e.preloadNext()
}

// scheduleRetryLocked re-attempts a failed handoff start once, then
// falls back to a full PlayTrack resolution.
func (e *Engine) scheduleRetryLocked(track *domain.Track) {
	slot := e.active
	time.AfterFunc(retryDelay, func() {
		e.lock()
		stillActive := slot == e.active
		active := e.slots[e.active]
		e.unlock()
		if !stillActive {
			return
		}
		if err := active.Play(); err == nil {
			e.lock()
			e.isPlaying = true
			e.playing.Publish(true)
			e.session.SetPlaybackState(true)
			e.unlock()
			return
		}
		e.logger.Warn("handoff retry failed, re-resolving", "track", track.Title)
		if err := e.PlayTrack(context.Background(), track, nil, 0); err != nil {
			e.logger.Error("handoff fallback failed", "track", track.Title, "error", err)
		}
	})
}

// preloadNext buffers the immediate next playlist entry into the
// inactive slot. Only one track is ever speculatively loaded, repeat
// preloads of the same track are suppressed, and failures are swallowed
// (the remote URL serves as fallback at actual play time).
func (e *Engine) preloadNext() {
	e.lock()
	if !e.preload || e.index+1 >= len(e.playlist) {
		e.unlock()
		return
	}
	next := e.playlist[e.index+1]
	if next.Key() == e.preloadKey {
		e.unlock()
		return
	}
	e.preloadKey = next.Key()
	e.unlock()

	src := e.resolveSource(context.Background(), next)

	e.lock()
	defer e.unlock()
	if err := e.slots[1-e.active].Load(src); err != nil {
		e.logger.Debug("preload failed", "track", next.Title, "error", err)
		return
	}
	e.logger.Debug("preloaded next track", "track", next.Title, "offline", src.Kind == domain.SourceLocal)
}

// === Media session ===

func (e *Engine) registerSessionHandlers() {
	e.session.SetHandlers(SessionHandlers{
		OnPlay:     e.Play,
		OnPause:    e.Pause,
		OnNext:     e.Next,
		OnPrevious: e.Previous,
		OnSeekTo:   e.SeekTo,
	})
}

func (e *Engine) updateSession(track *domain.Track) {
	album := track.Title
	if album == "" {
		album = track.FileName
	}
	e.session.SetMetadata(Metadata{
		Title:  track.Title,
		Artist: artistName,
		Album:  album,
	})
}

// slotHandler tags output events with their slot index.
type slotHandler struct {
	engine *Engine
	slot   int
}

func (h *slotHandler) OnTick(pos, dur float64) { h.engine.onTick(h.slot, pos, dur) }
func (h *slotHandler) OnEnded()                { h.engine.onEnded(h.slot) }
