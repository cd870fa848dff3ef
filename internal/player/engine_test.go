package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlabs/audiobible/internal/domain"
	"github.com/nlabs/audiobible/internal/log"
)

// fakeOutput records engine interactions and lets tests drive tick and
// end-of-track events.
type fakeOutput struct {
	mu        sync.Mutex
	handler   OutputHandler
	loads     []domain.Source
	playing   bool
	loaded    bool
	failPlays int
	pos, dur  float64
	lastSeek  float64
}

func (o *fakeOutput) Load(src domain.Source) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loads = append(o.loads, src)
	o.loaded = true
	return nil
}

func (o *fakeOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failPlays > 0 {
		o.failPlays--
		return errors.New("device busy")
	}
	o.playing = true
	return nil
}

func (o *fakeOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playing = false
}

func (o *fakeOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playing = false
	o.loaded = false
}

func (o *fakeOutput) Seek(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastSeek = seconds
	o.pos = seconds
}

func (o *fakeOutput) Position() (float64, float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos, o.dur
}

func (o *fakeOutput) SetHandler(h OutputHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler = h
}

func (o *fakeOutput) Close() error { return nil }

func (o *fakeOutput) fireEnded() {
	o.mu.Lock()
	h := o.handler
	o.mu.Unlock()
	h.OnEnded()
}

func (o *fakeOutput) loadCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.loads)
}

func (o *fakeOutput) isPlaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playing
}

func (o *fakeOutput) setDuration(d float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dur = d
}

// fakeResolver serves local sources for cached ids and remote sources
// otherwise.
type fakeResolver struct {
	mu        sync.Mutex
	cached    map[string][]byte
	downloads []string
}

func (r *fakeResolver) Resolve(track *domain.Track) domain.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	if blob, ok := r.cached[track.ID]; ok {
		return domain.LocalSource(blob)
	}
	if track.URL != "" {
		return domain.RemoteSource(track.URL)
	}
	return domain.UnavailableSource("no source")
}

func (r *fakeResolver) Download(_ context.Context, track *domain.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, track.ID)
	if r.cached == nil {
		r.cached = make(map[string][]byte)
	}
	r.cached[track.ID] = []byte("fetched " + track.ID)
	return nil
}

// recordingSession captures what the engine pushes to the platform surface.
type recordingSession struct {
	mu       sync.Mutex
	metadata []Metadata
	states   []bool
	handlers SessionHandlers
}

func (s *recordingSession) SetMetadata(m Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = append(s.metadata, m)
}

func (s *recordingSession) SetPlaybackState(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, playing)
}

func (s *recordingSession) SetHandlers(h SessionHandlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
}

func (s *recordingSession) lastMetadata() (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.metadata) == 0 {
		return Metadata{}, false
	}
	return s.metadata[len(s.metadata)-1], true
}

func testTracks(ids ...string) []*domain.Track {
	tracks := make([]*domain.Track, len(ids))
	for i, id := range ids {
		tracks[i] = &domain.Track{
			ID:    id,
			Title: "Chapter " + id,
			URL:   "https://example.com/" + id + ".mp3",
		}
	}
	return tracks
}

func newTestEngine(t *testing.T) (*Engine, [2]*fakeOutput, *fakeResolver, *recordingSession) {
	t.Helper()
	outs := [2]*fakeOutput{{}, {}}
	resolver := &fakeResolver{}
	session := &recordingSession{}
	e := NewEngine([2]Output{outs[0], outs[1]}, resolver, session, log.NullLogger())
	t.Cleanup(func() { e.Close() })
	return e, outs, resolver, session
}

func waitPreload(t *testing.T, out *fakeOutput) {
	t.Helper()
	require.Eventually(t, func() bool { return out.loadCount() > 0 },
		time.Second, 5*time.Millisecond, "next track was never preloaded")
}

func TestPlayTrackSwapsOnConfirmedStart(t *testing.T) {
	e, outs, _, session := newTestEngine(t)
	tracks := testTracks("t1")

	currentCh := e.CurrentTrack().Subscribe()
	playingCh := e.Playing().Subscribe()

	require.NoError(t, e.PlayTrack(context.Background(), tracks[0], tracks, 0))

	// Slot 1 was the inactive slot and received the load.
	assert.Equal(t, 1, outs[1].loadCount())
	assert.True(t, outs[1].isPlaying())
	assert.Equal(t, 0, outs[0].loadCount())

	assert.Equal(t, tracks[0], <-currentCh)
	assert.True(t, <-playingCh)

	meta, ok := session.lastMetadata()
	require.True(t, ok)
	assert.Equal(t, "Chapter t1", meta.Title)
	assert.Equal(t, "Audio Bible", meta.Artist)
}

func TestPlayTrackFailedStartLeavesStateUntouched(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1")
	outs[1].failPlays = 1

	err := e.PlayTrack(context.Background(), tracks[0], tracks, 0)
	require.Error(t, err)

	_, hasPlaying := e.Playing().Value()
	assert.False(t, hasPlaying)
	_, hasCurrent := e.CurrentTrack().Value()
	assert.False(t, hasCurrent)
}

func TestGaplessHandoff(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1", "t2")

	endedCh := e.TrackEnded().Subscribe()

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))
	// Slot 0 preloads t2 while slot 1 plays t1.
	waitPreload(t, outs[0])

	outs[1].fireEnded()

	assert.Equal(t, tracks[0], <-endedCh)

	current, ok := e.CurrentTrack().Value()
	require.True(t, ok)
	assert.Equal(t, tracks[1], current)
	assert.True(t, outs[0].isPlaying())
	assert.False(t, outs[1].isPlaying())

	playing, _ := e.Playing().Value()
	assert.True(t, playing)
}

func TestEndOfPlaylistStopsCleanly(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1")

	endedCh := e.TrackEnded().Subscribe()
	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))

	outs[1].fireEnded()

	assert.Equal(t, tracks[0], <-endedCh)
	playing, ok := e.Playing().Value()
	require.True(t, ok)
	assert.False(t, playing)
	assert.False(t, outs[0].isPlaying())
	assert.False(t, outs[1].isPlaying())
}

func TestSeekToClamps(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1")
	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))

	active := outs[1]
	active.setDuration(180)

	progressCh := e.Progress().Subscribe()

	e.SeekTo(500)
	assert.EqualValues(t, 180, active.lastSeek)
	update := <-progressCh
	assert.EqualValues(t, 180, update.CurrentTime)
	assert.EqualValues(t, 180, update.Duration)

	e.SeekTo(-20)
	assert.EqualValues(t, 0, active.lastSeek)
}

func TestSkipMovesRelative(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1")
	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))

	active := outs[1]
	active.setDuration(180)
	active.Seek(60)

	e.Skip(30)
	assert.EqualValues(t, 90, active.lastSeek)

	e.Skip(-200)
	assert.EqualValues(t, 0, active.lastSeek)
}

func TestNextAndPreviousWrapAround(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	tracks := testTracks("t1", "t2", "t3")

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 2))

	// Past the end wraps to the first entry.
	e.Next()
	current, _ := e.CurrentTrack().Value()
	assert.Equal(t, "t1", current.ID)

	// Before the start wraps to the last entry.
	e.Previous()
	current, _ = e.CurrentTrack().Value()
	assert.Equal(t, "t3", current.ID)
}

func TestHasNextHasPrevious(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	tracks := testTracks("t1", "t2", "t3")

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))
	assert.True(t, e.HasNext())
	assert.False(t, e.HasPrevious())

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 2))
	assert.False(t, e.HasNext())
	assert.True(t, e.HasPrevious())
}

func TestPauseAndToggle(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1")
	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))

	e.Pause()
	assert.False(t, outs[1].isPlaying())
	playing, _ := e.Playing().Value()
	assert.False(t, playing)

	e.Toggle()
	assert.True(t, outs[1].isPlaying())
	playing, _ = e.Playing().Value()
	assert.True(t, playing)
}

func TestPreloadSuppressedForSameTrack(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1", "t2")

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))
	waitPreload(t, outs[0])
	require.Equal(t, 1, outs[0].loadCount())

	// A repeat preload of the already-buffered track is a no-op.
	e.preloadNext()
	assert.Equal(t, 1, outs[0].loadCount())
}

func TestPreloadDisabled(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	e.SetPreload(false)
	tracks := testTracks("t1", "t2")

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, outs[0].loadCount())
}

func TestPreloadUsesCacheWhenPresent(t *testing.T) {
	e, outs, resolver, _ := newTestEngine(t)
	resolver.cached = map[string][]byte{"t2": []byte("cached blob")}
	tracks := testTracks("t1", "t2")

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))
	waitPreload(t, outs[0])

	outs[0].mu.Lock()
	src := outs[0].loads[0]
	outs[0].mu.Unlock()
	assert.Equal(t, domain.SourceLocal, src.Kind)
	assert.Equal(t, []byte("cached blob"), src.Blob)
}

func TestHandoffRetriesFailedStart(t *testing.T) {
	e, outs, _, _ := newTestEngine(t)
	tracks := testTracks("t1", "t2")

	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))
	waitPreload(t, outs[0])

	// First handoff start fails; the delayed retry must succeed.
	outs[0].failPlays = 1
	outs[1].fireEnded()

	current, _ := e.CurrentTrack().Value()
	assert.Equal(t, "t2", current.ID)
	assert.False(t, outs[0].isPlaying())

	require.Eventually(t, func() bool { return outs[0].isPlaying() },
		2*time.Second, 10*time.Millisecond, "retry never started playback")
	playing, _ := e.Playing().Value()
	assert.True(t, playing)
}

func TestSessionTransportControls(t *testing.T) {
	e, outs, _, session := newTestEngine(t)
	tracks := testTracks("t1", "t2")
	require.NoError(t, e.PlayPlaylist(context.Background(), tracks, 0))

	session.mu.Lock()
	handlers := session.handlers
	session.mu.Unlock()
	require.NotNil(t, handlers.OnPause)

	handlers.OnPause()
	assert.False(t, outs[1].isPlaying())

	handlers.OnPlay()
	assert.True(t, outs[1].isPlaying())
}
