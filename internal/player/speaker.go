package player

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/nlabs/audiobible/internal/domain"
)

const (
	outputSampleRate    = beep.SampleRate(44100)
	speakerBufferSize   = 250 * time.Millisecond
	resampleQuality     = 4
	tickInterval        = 500 * time.Millisecond
	remoteFetchTimeout  = 60 * time.Second
	volumeCurveExponent = 0.5
	minVolumeDB         = -10.0
)

// The speaker is a process-wide mixer; both slots play through it, so
// it is initialized exactly once at a fixed rate and per-track sample
// rates are resampled into it.
var (
	speakerOnce sync.Once
	speakerErr  error
)

func ensureSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(outputSampleRate, outputSampleRate.N(speakerBufferSize))
		if speakerErr != nil {
			speakerErr = fmt.Errorf("failed to initialize speaker: %w", speakerErr)
		}
	})
	return speakerErr
}

// nopSeekCloser adds a no-op Close to a bytes.Reader for mp3.Decode.
type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

// SpeakerOutput is an Output that plays MP3 audio through the device
// speaker. Local sources decode straight from the cached blob; remote
// sources are buffered fully before decoding so seeking works either
// way.
type SpeakerOutput struct {
	logger *slog.Logger
	client *http.Client

	mu       sync.Mutex
	handler  OutputHandler
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	percent  int           // last requested volume, applied on every load
	queued   bool          // streamer handed to the speaker mixer
	cancel   chan struct{} // stops the watcher/ticker goroutines
	gen      int           // invalidates goroutines of superseded loads
}

func NewSpeakerOutput(logger *slog.Logger) *SpeakerOutput {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeakerOutput{
		logger:  logger,
		client:  &http.Client{Timeout: remoteFetchTimeout},
		percent: 100,
	}
}

func (o *SpeakerOutput) SetHandler(h OutputHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler = h
}

func (o *SpeakerOutput) Load(src domain.Source) error {
	data, err := o.sourceBytes(src)
	if err != nil {
		return err
	}

	streamer, format, err := mp3.Decode(nopSeekCloser{bytes.NewReader(data)})
	if err != nil {
		return fmt.Errorf("mp3 decode: %w", err)
	}
	if err := ensureSpeaker(); err != nil {
		streamer.Close()
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()

	o.gen++
	gen := o.gen
	o.streamer = streamer
	o.format = format

	var resampled beep.Streamer = streamer
	if format.SampleRate != outputSampleRate {
		resampled = beep.Resample(resampleQuality, format.SampleRate, outputSampleRate, streamer)
	}

	ended := make(chan struct{})
	seq := beep.Seq(resampled, beep.Callback(func() { close(ended) }))
	o.ctrl = &beep.Ctrl{Streamer: seq, Paused: true}
	o.volume = &effects.Volume{
		Streamer: o.ctrl,
		Base:     2,
		Volume:   percentToExponent(float64(o.percent)),
		Silent:   o.percent <= 0,
	}
	o.queued = false
	o.cancel = make(chan struct{})

	go o.watch(gen, ended, o.cancel)
	go o.tickLoop(gen, o.cancel)
	return nil
}

// sourceBytes materializes the playable bytes for a source.
func (o *SpeakerOutput) sourceBytes(src domain.Source) ([]byte, error) {
	switch src.Kind {
	case domain.SourceLocal:
		return src.Blob, nil
	case domain.SourceRemote:
		resp, err := o.client.Get(src.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: status %d", domain.ErrFetchFailed, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, src.Reason)
	}
}

func (o *SpeakerOutput) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctrl == nil {
		return errors.New("no source loaded")
	}
	if !o.queued {
		speaker.Play(o.volume)
		o.queued = true
	}
	speaker.Lock()
	o.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (o *SpeakerOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctrl == nil {
		return
	}
	speaker.Lock()
	o.ctrl.Paused = true
	speaker.Unlock()
}

func (o *SpeakerOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

// stopLocked silences this slot without touching the shared mixer's
// other streams: nilling the Ctrl streamer drains it, and the mixer
// drops drained streamers on its own.
func (o *SpeakerOutput) stopLocked() {
	if o.cancel != nil {
		close(o.cancel)
		o.cancel = nil
	}
	if o.ctrl != nil {
		speaker.Lock()
		o.ctrl.Streamer = nil
		speaker.Unlock()
		o.ctrl = nil
	}
	if o.streamer != nil {
		o.streamer.Close()
		o.streamer = nil
	}
	o.volume = nil
	o.queued = false
}

func (o *SpeakerOutput) Seek(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamer == nil {
		return
	}
	speaker.Lock()
	target := o.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if target < 0 {
		target = 0
	}
	if n := o.streamer.Len(); target > n {
		target = n
	}
	if err := o.streamer.Seek(target); err != nil {
		o.logger.Warn("seek failed", "seconds", seconds, "error", err)
	}
	speaker.Unlock()
}

func (o *SpeakerOutput) Position() (pos, dur float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamer == nil {
		return 0, 0
	}
	speaker.Lock()
	rate := float64(o.format.SampleRate)
	pos = float64(o.streamer.Position()) / rate
	dur = float64(o.streamer.Len()) / rate
	speaker.Unlock()
	return pos, dur
}

// SetVolume maps a 0-100 percentage onto the perceptual volume curve.
// The setting sticks across loads.
func (o *SpeakerOutput) SetVolume(percent int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.percent = percent
	if o.volume == nil {
		return
	}
	speaker.Lock()
	o.volume.Volume = percentToExponent(float64(percent))
	o.volume.Silent = percent <= 0
	speaker.Unlock()
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return minVolumeDB
	}
	if p >= 100 {
		return 0
	}
	adjusted := math.Pow(p/100.0, volumeCurveExponent)
	return (1.0 - adjusted) * minVolumeDB
}

func (o *SpeakerOutput) Close() error {
	o.Stop()
	return nil
}

// watch delivers the end-of-track event once, unless the load was
// superseded or stopped first.
func (o *SpeakerOutput) watch(gen int, ended, cancel chan struct{}) {
	select {
	case <-ended:
	case <-cancel:
		return
	}
	o.mu.Lock()
	handler := o.handler
	stale := gen != o.gen
	o.mu.Unlock()
	if stale || handler == nil {
		return
	}
	handler.OnEnded()
}

// tickLoop publishes time progress while this slot is audible.
func (o *SpeakerOutput) tickLoop(gen int, cancel chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		if gen != o.gen || o.ctrl == nil {
			o.mu.Unlock()
			return
		}
		handler := o.handler
		speaker.Lock()
		paused := o.ctrl.Paused
		speaker.Unlock()
		playing := o.queued && !paused
		o.mu.Unlock()

		if !playing || handler == nil {
			continue
		}
		pos, dur := o.Position()
		handler.OnTick(pos, dur)
	}
}
