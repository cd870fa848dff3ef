package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nlabs/audiobible/internal/bible"
	"github.com/nlabs/audiobible/internal/config"
	"github.com/nlabs/audiobible/internal/domain"
	"github.com/nlabs/audiobible/internal/downloader"
	"github.com/nlabs/audiobible/internal/log"
	"github.com/nlabs/audiobible/internal/plan"
	"github.com/nlabs/audiobible/internal/player"
	"github.com/nlabs/audiobible/internal/space"
	"github.com/nlabs/audiobible/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usage = `usage: audiobible <command> [args]

commands:
  versions                           list bible versions saved offline
  fetch <language> <version>         download a version's book structure
  books <bibleID>                    list books with download status
  download <bibleID> <book> [ch...]  cache a book (or specific chapters)
  download-day <bibleID> <planID> <day>
  play <bibleID> <book> [chapter]    play a book from a chapter
  play-day <bibleID> <planID>        play the plan's next unfinished day
  plans                              list saved reading plans
  plans-import <url>                 import a plan from a remote document
  plans-remove <id>                  delete a saved plan
  evict <n>                          remove the n oldest cached chapters
  clear                              drop the whole audio cache
`

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("audiobible %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired services for command dispatch.
type app struct {
	cfg    *config.Config
	store  domain.Store
	dl     *downloader.Service
	bibles *bible.Service
	plans  *plan.Service
	logger *slog.Logger
}

func run(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting audiobible", "version", Version)

	st, err := store.OpenWithRecovery(cfg.Cache.Dir, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	monitor := space.NewMonitor(cfg.Cache.Dir, logger)

	dl := downloader.NewService(st, monitor, logger)
	dl.ThresholdMB = cfg.Cache.MinFreeMB
	dl.EvictBatch = cfg.Cache.EvictBatch

	bibles := bible.NewService(bible.NewClient(cfg.CDN.BaseURL, logger), st, dl, cfg.Audio.BaseURL, logger)
	plans := plan.NewService(st, logger)

	a := &app{cfg: cfg, store: st, dl: dl, bibles: bibles, plans: plans, logger: logger}

	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "versions":
		return a.cmdVersions()
	case "fetch":
		return a.cmdFetch(ctx, args[1:])
	case "books":
		return a.cmdBooks(args[1:])
	case "download":
		return a.cmdDownload(ctx, args[1:])
	case "download-day":
		return a.cmdDownloadDay(ctx, args[1:])
	case "play":
		return a.cmdPlay(ctx, args[1:])
	case "play-day":
		return a.cmdPlayDay(ctx, args[1:])
	case "plans":
		return a.cmdPlans()
	case "plans-import":
		return a.cmdPlansImport(ctx, args[1:])
	case "plans-remove":
		return a.cmdPlansRemove(args[1:])
	case "evict":
		return a.cmdEvict(args[1:])
	case "clear":
		return a.store.ClearAudio()
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) cmdVersions() error {
	versions := a.bibles.SavedVersions()
	if len(versions) == 0 {
		fmt.Println("no bible versions saved; run: audiobible fetch <language> <version>")
		return nil
	}
	for _, v := range versions {
		fmt.Printf("%-10s %-40s %d books, %.1f MB\n",
			v.ID, v.FullName, len(v.Books), float64(v.SizeInBytes)/1024/1024)
	}
	return nil
}

func (a *app) cmdFetch(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fetch <language> <version>")
	}
	v, err := a.bibles.LoadVersion(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("saved %s (%s), %d books\n", v.FullName, v.ID, len(v.Books))
	return nil
}

func (a *app) cmdBooks(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: books <bibleID>")
	}
	v, err := a.bibles.Version(args[0])
	if err != nil {
		return err
	}
	statuses, err := a.bibles.BooksDownloadStatus(v)
	if err != nil {
		return err
	}
	for i, book := range v.Books {
		st := statuses[i]
		fmt.Printf("%-8s %-20s %3d chapters, %3d cached\n", book.Abbrev, book.Name, book.Chapters, st.Total)
	}
	return nil
}

// progressPrinter paints batch download progress on stdout.
type progressPrinter struct{}

func (progressPrinter) OnProgress(p domain.DownloadProgress) {
	switch p.Status {
	case domain.BatchRunning:
		if p.CurrentTrack != nil {
			fmt.Printf("\r[%d/%d] %-40s", p.Downloaded, p.Total, p.CurrentTrack.Title)
		}
	case domain.BatchCompleted:
		fmt.Printf("\rdownloaded %d/%d chapters%s\n", p.Downloaded, p.Total, strings.Repeat(" ", 30))
	case domain.BatchError:
		fmt.Printf("\rdownloaded %d/%d chapters, some failed%s\n", p.Downloaded, p.Total, strings.Repeat(" ", 20))
	}
}

func (a *app) cmdDownload(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: download <bibleID> <book> [chapters...]")
	}
	v, err := a.bibles.Version(args[0])
	if err != nil {
		return err
	}
	var chapters []int
	for _, arg := range args[2:] {
		ch, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("bad chapter %q", arg)
		}
		chapters = append(chapters, ch)
	}

	a.dl.SetObserver(progressPrinter{})
	tracks, err := a.bibles.Tracks(v, args[1], chapters)
	if err != nil {
		return err
	}
	var pending []*domain.Track
	for _, t := range tracks {
		if t.Status != domain.TrackDone {
			pending = append(pending, t)
		}
	}
	a.dl.DownloadTracks(ctx, pending)
	return nil
}

func (a *app) cmdDownloadDay(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: download-day <bibleID> <planID> <day>")
	}
	v, err := a.bibles.Version(args[0])
	if err != nil {
		return err
	}
	p, err := a.plans.Get(args[1])
	if err != nil {
		return err
	}
	day, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("bad day %q", args[2])
	}
	a.dl.SetObserver(progressPrinter{})
	a.bibles.DownloadPlanDay(ctx, v, p, day)
	return nil
}

func (a *app) cmdPlay(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: play <bibleID> <book> [chapter]")
	}
	v, err := a.bibles.Version(args[0])
	if err != nil {
		return err
	}
	tracks, err := a.bibles.Tracks(v, args[1], nil)
	if err != nil {
		return err
	}
	start := 0
	if len(args) > 2 {
		ch, err := strconv.Atoi(args[2])
		if err != nil || ch < 1 || ch > len(tracks) {
			return fmt.Errorf("bad chapter %q", args[2])
		}
		start = ch - 1
	}
	return a.runPlayback(ctx, v, nil, tracks, start)
}

func (a *app) cmdPlayDay(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: play-day <bibleID> <planID>")
	}
	v, err := a.bibles.Version(args[0])
	if err != nil {
		return err
	}
	p, err := a.plans.Get(args[1])
	if err != nil {
		return err
	}
	pos := a.plans.StoppedAt(p)
	if pos.Day < 0 {
		fmt.Printf("plan %q is completed\n", p.Title)
		return nil
	}
	tracks := a.bibles.DailyPlanTracks(v, p, pos.Day)
	if len(tracks) == 0 {
		return fmt.Errorf("%w: no tracks for day %d", domain.ErrNotFound, pos.Day)
	}
	fmt.Printf("%s — day %d\n", p.Title, pos.Day)
	return a.runPlayback(ctx, v, p, tracks, pos.PortionIndex)
}

// runPlayback drives the engine until the playlist finishes or the
// process is interrupted. Track-ended events feed plan progress when a
// plan is attached.
func (a *app) runPlayback(ctx context.Context, v *domain.BibleVersion, p *domain.Plan, tracks []*domain.Track, start int) error {
	outA := player.NewSpeakerOutput(a.logger)
	outB := player.NewSpeakerOutput(a.logger)
	outA.SetVolume(a.cfg.Player.Volume)
	outB.SetVolume(a.cfg.Player.Volume)

	engine := player.NewEngine([2]player.Output{outA, outB}, a.dl, nil, a.logger)
	engine.SetPreload(a.cfg.Player.PreloadNext)
	defer engine.Close()

	current := engine.CurrentTrack().Subscribe()
	progress := engine.Progress().Subscribe()
	ended := engine.TrackEnded().Subscribe()
	playing := engine.Playing().Subscribe()

	if err := engine.PlayPlaylist(ctx, tracks, start); err != nil {
		return err
	}

	finished := tracks[len(tracks)-1]
	for {
		select {
		case <-ctx.Done():
			engine.Stop()
			fmt.Println()
			return nil
		case track := <-current:
			fmt.Printf("\n▶ %s\n", track.Title)
		case t := <-progress:
			fmt.Printf("\r%6.0fs / %6.0fs", t.CurrentTime, t.Duration)
		case track := <-ended:
			if p != nil {
				a.markPlanProgress(v, p, track)
			}
			if track.Key() == finished.Key() {
				fmt.Println("\nplaylist finished")
				return nil
			}
		case <-playing:
		}
	}
}

// markPlanProgress maps a finished track back onto the plan's portions.
func (a *app) markPlanProgress(v *domain.BibleVersion, p *domain.Plan, track *domain.Track) {
	for i := range v.Books {
		if v.Books[i].Name != track.Book {
			continue
		}
		if err := a.plans.MarkCompleted(p, i, track.Chapter); err != nil {
			a.logger.Error("failed to record plan progress", "plan", p.ID, "error", err)
		}
		return
	}
}

func (a *app) cmdPlans() error {
	plans := a.plans.GetAll()
	if len(plans) == 0 {
		fmt.Println("no saved plans")
		return nil
	}
	for _, p := range plans {
		pos := a.plans.StoppedAt(p)
		at := "done"
		if pos.Day > 0 {
			at = fmt.Sprintf("day %d", pos.Day)
		}
		fmt.Printf("%-36s %-30s %3d days  %-11s stopped at %s\n", p.ID, p.Title, p.Days, p.Status, at)
	}
	return nil
}

func (a *app) cmdPlansImport(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: plans-import <url>")
	}
	p, err := a.plans.ImportFromURL(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("imported %q (%s), %d days\n", p.Title, p.ID, p.Days)
	return nil
}

func (a *app) cmdPlansRemove(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: plans-remove <id>")
	}
	return a.plans.Delete(args[0])
}

func (a *app) cmdEvict(args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("bad count %q", args[0])
		}
	}
	removed := a.dl.RemoveOldest(n)
	fmt.Printf("removed %d cached chapter(s)\n", len(removed))
	return nil
}
