package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/aloud/internal/audio"
	"github.com/dgnsrekt/aloud/internal/bookmark"
	"github.com/dgnsrekt/aloud/internal/cache"
	"github.com/dgnsrekt/aloud/internal/document"
	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/signals"
	"github.com/dgnsrekt/aloud/internal/synth"
	"github.com/dgnsrekt/aloud/internal/tts"
	"github.com/dgnsrekt/aloud/internal/ttypes"
	"github.com/dgnsrekt/aloud/utils"
)

var (
	readSection     string
	readNoResume    bool
	readPageChars   int
	readIncludeCode bool
	readMetricsAddr string
	readNATS        string
	readNoPrefetch  bool
	readCacheDir    string

	readCmd = &cobra.Command{
		Use:   "read FILE",
		Short: "Read a document aloud",
		Long: paragraph(fmt.Sprintf("\n%s a markdown or text document from its bookmark. "+
			"Space pauses, + and - change the rate, n and p move between sections, q quits.", keyword("Read"))),
		Example: paragraph("aloud read book.md\naloud read novel.txt --section 第三章 --voice qingche"),
		Args:    cobra.ExactArgs(1),
		RunE:    runRead,
	}
)

func init() {
	readCmd.Flags().StringVar(&readSection, "section", "", "section id or 1-based index to start at")
	readCmd.Flags().BoolVar(&readNoResume, "no-resume", false, "ignore the saved bookmark")
	readCmd.Flags().IntVar(&readPageChars, "page-chars", document.DefaultOptions().PageChars, "characters per page (0 disables page signals)")
	readCmd.Flags().BoolVar(&readIncludeCode, "code", false, "read code blocks")
	readCmd.Flags().StringVar(&readMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	readCmd.Flags().BoolVar(&readNoPrefetch, "no-prefetch", false, "do not synthesize the next section ahead of time")
	readCmd.Flags().StringVar(&readCacheDir, "cache-dir", "", "keep synthesized audio in this directory")
	readCmd.Flags().StringVar(&readNATS, "nats", "", "publish reader signals to this NATS server")
}

// session holds everything a read run owns.
type session struct {
	cfg       tts.Config
	doc       *document.Document
	reader    *tts.Reader
	store     *cache.Tiered
	player    *audio.OtoPlayer
	bookmarks *bookmark.Store
	events    *signals.Chan
	closers   []func() error
	logger    *log.Logger
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return err
	}
	if readNoPrefetch {
		cfg.Prefetch = false
	}
	if readCacheDir != "" {
		cfg.Cache.Dir = readCacheDir
	}

	opts := document.DefaultOptions()
	opts.PageChars = readPageChars
	opts.IncludeCode = readIncludeCode
	doc, err := document.Load(args[0], opts)
	if err != nil {
		return err
	}
	if len(doc.Sections) == 0 {
		return fmt.Errorf("%s has nothing to read", args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cred, err := credentialProvider(cfg)
	if err != nil {
		return err
	}

	result := tts.ValidateSetup(cfg, cred)
	if !result.Ready {
		if !errors.Is(result.Error, ttypes.ErrMissingCredential) {
			fmt.Fprintln(os.Stderr, warning(result.Error.Error()))
			fmt.Fprintln(os.Stderr, paragraph(result.Guidance))
			return result.Error
		}
		fmt.Fprintln(os.Stderr, paragraph(result.Guidance))
		if _, watched := cred.(*tts.FileCredential); !watched {
			return result.Error
		}
	}
	if note, ok := result.Details["voice_note"]; ok {
		log.Warn("voice", "name", cfg.Voice, "note", note)
	}

	s, err := newSession(ctx, cfg, doc, cred)
	if err != nil {
		return err
	}
	defer s.close()

	if fc, ok := cred.(*tts.FileCredential); ok {
		err := fc.Watch(ctx, func(c string) {
			if c != "" && s.reader.Waiting() {
				s.logger.Info("credential updated, resuming")
				if err := s.reader.Resume(); err != nil {
					s.logger.Warn("unable to resume", "err", err)
				}
			}
		})
		if err != nil {
			s.logger.Warn("credential file is not watched", "err", err)
		}
	}

	section, unit, offset := s.startPosition(ctx)
	if err := s.reader.Start(ctx, section, unit, offset); err != nil && !ttypes.HasCode(err, ttypes.CodePrecondition) {
		return err
	}

	return s.run(ctx)
}

func credentialProvider(cfg tts.Config) (tts.CredentialProvider, error) {
	if cfg.CredentialFile != "" {
		return tts.NewFileCredential(utils.ExpandPath(cfg.CredentialFile), log.Default())
	}
	return tts.StaticCredential(cfg.Credential), nil
}

func newSession(ctx context.Context, cfg tts.Config, doc *document.Document, cred tts.CredentialProvider) (*session, error) {
	logger := log.Default()
	s := &session{cfg: cfg, doc: doc, logger: logger, events: signals.NewChan(64)}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	if readMetricsAddr != "" {
		s.serveMetrics(reg)
	}

	storeCfg := cfg.CacheStoreConfig()
	if storeCfg.DiskPath != "" {
		// fingerprints do not cover the voice
		storeCfg.DiskPath = filepath.Join(utils.ExpandPath(storeCfg.DiskPath), cfg.Voice)
	}
	store, err := cache.NewTiered(storeCfg, m, logger)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.closers = append(s.closers, store.Close)

	player, err := audio.NewOtoPlayer(store, cfg.PlayerConfig(), logger)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}
	if err := player.SetVolume(cfg.Audio.Volume); err != nil {
		logger.Warn("volume ignored", "err", err)
	}
	s.player = player

	sinks := signals.Fanout{signals.NewLog(logger), s.events}
	natsURL := cfg.Signals.NATSURL
	if readNATS != "" {
		natsURL = readNATS
	}
	if natsURL != "" {
		pub, err := signals.ConnectNATS(natsURL, cfg.Signals.Subject, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, pub.Close)
		sinks = append(sinks, pub)
	}

	if path, err := gap.NewScope(gap.User, "aloud").DataPath("bookmarks.db"); err == nil {
		if b, err := bookmark.Open(ctx, path, logger); err == nil {
			s.bookmarks = b
			s.closers = append(s.closers, b.Close)
		} else {
			logger.Warn("bookmarks disabled", "err", err)
		}
	}

	reader, err := tts.NewReader(cfg, tts.Deps{
		Synthesizer: synth.NewClient(cfg.SynthClientConfig(), m, logger),
		Store:       store,
		Player:      player,
		Credential:  cred,
		Signals:     sinks,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	reader.Load(doc.Sections)
	s.reader = reader

	return s, nil
}

func (s *session) serveMetrics(reg *prometheus.Registry) {
	srv := &http.Server{
		Addr:              readMetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "err", err)
		}
	}()
	s.closers = append(s.closers, srv.Close)
	s.logger.Info("serving metrics", "addr", readMetricsAddr)
}

// startPosition resolves --section, then the bookmark, then the start of
// the document.
func (s *session) startPosition(ctx context.Context) (section, unit, offset int) {
	if readSection != "" {
		if i, ok := s.doc.SectionIndex(readSection); ok {
			return i, 0, 0
		}
		if n, err := strconv.Atoi(readSection); err == nil && n >= 1 && n <= len(s.doc.Sections) {
			return n - 1, 0, 0
		}
		s.logger.Warn("unknown section, starting at the beginning", "section", readSection)
		return 0, 0, 0
	}

	if readNoResume || s.bookmarks == nil {
		return 0, 0, 0
	}
	b, err := s.bookmarks.Load(ctx, s.doc.Name)
	if err != nil {
		if !errors.Is(err, bookmark.ErrNotFound) {
			s.logger.Warn("unable to load bookmark", "err", err)
		}
		return 0, 0, 0
	}
	i, ok := s.doc.SectionIndex(b.Section)
	if !ok {
		return 0, 0, 0
	}
	s.logger.Debug("resuming from bookmark", "section", b.Section, "unit", b.Unit, "offset", b.Offset)
	return i, b.Unit, b.Offset
}

// run drives the status line and keyboard until the document ends or the
// user quits.
func (s *session) run(ctx context.Context) error {
	keys := make(chan byte, 8)
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, state) //nolint:errcheck
			go readKeys(keys)
		}
	}

	status := newStatusLine(os.Stdout)
	defer status.done()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.saveBookmark()
			return nil

		case <-s.reader.Done():
			s.saveBookmark()
			status.render(s.snapshot("finished"))
			return nil

		case sig := <-s.events.C():
			switch sig.Kind {
			case ttypes.SignalFatal:
				s.saveBookmark()
				status.message(warning("playback stopped: " + sig.Err.Error()))
			case ttypes.SignalPauseMissingCredential:
				status.message(warning("waiting for a credential"))
			case ttypes.SignalSectionEnd:
				s.saveBookmark()
			}

		case k := <-keys:
			if quit := s.handleKey(k); quit {
				s.saveBookmark()
				return nil
			}

		case <-ticker.C:
			state := "reading"
			switch {
			case s.reader.Waiting():
				state = "waiting"
			case s.reader.Paused():
				state = "paused"
			}
			status.render(s.snapshot(state))
		}
	}
}

func (s *session) handleKey(k byte) (quit bool) {
	var err error
	switch k {
	case 'q', 3: // ctrl+c in raw mode
		return true
	case ' ':
		if s.reader.Paused() {
			err = s.reader.Resume()
		} else {
			s.reader.Pause()
		}
	case '+', '=':
		err = s.reader.Faster()
	case '-', '_':
		err = s.reader.Slower()
	case 'n':
		if i := s.reader.SectionIndex() + 1; i < len(s.doc.Sections) {
			err = s.reader.Seek(i, 0)
		}
	case 'p':
		if i := s.reader.SectionIndex() - 1; i >= 0 {
			err = s.reader.Seek(i, 0)
		}
	}
	if err != nil && !ttypes.HasCode(err, ttypes.CodePrecondition) {
		s.logger.Warn("key ignored", "key", string(k), "err", err)
	}
	return false
}

func readKeys(keys chan<- byte) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n == 1 {
			keys <- buf[0]
		}
	}
}

func (s *session) snapshot(state string) statusInfo {
	p := s.reader.Progress()
	idx := s.reader.SectionIndex()
	title := s.doc.Sections[idx].Title
	if title == "" {
		title = s.doc.Title
	}

	var bytes int64
	if st, ok := s.store.Stats()["memory"].(cache.Stats); ok {
		bytes = st.Size
	}

	return statusInfo{
		State:    state,
		Title:    title,
		Section:  idx + 1,
		Sections: len(s.doc.Sections),
		Chars:    p.CharsRead,
		Total:    s.doc.Sections[idx].Chars(),
		Position: p.Position,
		Duration: p.Duration,
		Rate:     s.reader.Rate().Display(),
		Cached:   bytes,
	}
}

func (s *session) saveBookmark() {
	if s.bookmarks == nil || s.reader == nil {
		return
	}
	p := s.reader.Progress()
	if p.Section == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.bookmarks.Save(ctx, bookmark.Bookmark{
		Document:  s.doc.Name,
		Section:   p.Section,
		Unit:      p.Unit,
		Offset:    p.Offset,
		CharsRead: p.CharsRead,
		Rate:      s.reader.Rate().Get(),
		Voice:     s.cfg.Voice,
	})
	if err != nil {
		s.logger.Warn("unable to save bookmark", "err", err)
	}
}

func (s *session) close() {
	if s.reader != nil {
		s.reader.Close()
	}
	if s.player != nil {
		_ = s.player.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Debug("close failed", "err", err)
		}
	}
}
