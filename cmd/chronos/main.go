// Package main provides the Chronos timeline assistant: a realtime
// voice session that captures microphone audio, streams it to the
// model, plays the reply audio gaplessly, and lets the model create
// and update notes on the user's timeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingwiss/Chronos/pkg/ai"
	"github.com/kingwiss/Chronos/pkg/audio"
	"github.com/kingwiss/Chronos/pkg/config"
	"github.com/kingwiss/Chronos/pkg/logging"
	"github.com/kingwiss/Chronos/pkg/metrics"
	"github.com/kingwiss/Chronos/pkg/notes"
	"github.com/kingwiss/Chronos/pkg/types"
	"github.com/kingwiss/Chronos/pkg/voice"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Focus       string
	AddText     string
	List        bool
	MemoSeconds int
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("Chronos v%s\n", version)
		return
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to YAML configuration file")
	flag.StringVar(&cli.Focus, "focus", "", "What the user is currently looking at, passed to the assistant")
	flag.StringVar(&cli.AddText, "add", "", "Add a single note and exit")
	flag.BoolVar(&cli.List, "list", false, "Print the recent timeline and exit")
	flag.IntVar(&cli.MemoSeconds, "memo", 0, "Record a voice memo of N seconds and exit")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version information")

	flag.Parse()
	return cli
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger("main")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", err)
	}
	logger.Infof("Chronos v%s starting", version)

	store, err := notes.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open note store: %w", err)
	}
	defer store.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(prometheus.DefaultRegisterer)
		go serveMetrics(ctx, cfg.Metrics.Address, logger)
	}

	enricher := buildEnricher(cfg, logger)

	switch {
	case cli.AddText != "":
		return runAdd(ctx, store, enricher, m, cli.AddText, logger)
	case cli.List:
		return runList(ctx, store)
	case cli.MemoSeconds > 0:
		return runMemo(ctx, store, cfg, cli.MemoSeconds)
	default:
		return runSession(ctx, cli, cfg, store, enricher, m, logger)
	}
}

// buildEnricher creates the note enricher when an AI key is available.
// Without a key the app still works; notes are stored as-is.
func buildEnricher(cfg *config.Config, logger *logging.Logger) *ai.Enricher {
	if cfg.AI.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		logger.Infof("No AI key configured, note enrichment disabled")
		return nil
	}

	provider, err := ai.NewOpenAIProvider(cfg.AI.APIKey,
		ai.WithModel(cfg.AI.Model),
		ai.WithImageModel(cfg.AI.ImageModel),
		ai.WithBaseURL(cfg.AI.BaseURL),
	)
	if err != nil {
		logger.Warnf("Failed to create AI provider, enrichment disabled: %v", err)
		return nil
	}

	return ai.NewEnricher(provider,
		ai.WithImageGenerator(provider),
		ai.WithMaxPromptTokens(cfg.AI.MaxPromptTokens),
	)
}

// runSession runs the realtime voice session until interrupted.
func runSession(ctx context.Context, cli *CLIConfig, cfg *config.Config, store *notes.Store, enricher *ai.Enricher, m *metrics.Metrics, logger *logging.Logger) error {
	device, err := audio.NewOtoDevice(cfg.Audio.PlaybackSampleRate)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer device.Close()

	scheduler := audio.NewScheduler(device,
		audio.WithSampleRate(cfg.Audio.PlaybackSampleRate),
		audio.WithRestartGrace(cfg.Audio.GetRestartGrace()),
	)
	if m != nil {
		scheduler.AddListener(metrics.NewSchedulerListener(m))
	}
	scheduler.AddListener(&playbackLogger{logger: logger})

	input := voice.NewMalgoInput(cfg.Audio.CaptureFrameSize)

	callbacks := voice.Callbacks{
		OnNoteCreate: func(args voice.CreateNoteArgs) (string, error) {
			return createNoteFromTool(ctx, store, enricher, m, cfg, args, logger)
		},
		OnNoteUpdate: func(noteID string, update notes.Update) error {
			_, err := store.Update(ctx, noteID, update)
			return err
		},
		OnStatus: func(open bool) {
			if open {
				fmt.Println("Connected. Start talking; Ctrl-C to quit.")
			} else {
				fmt.Println("Disconnected.")
			}
		},
		OnError: func(err error) {
			logger.Errorf("Session error: %v", err)
			fmt.Fprintf(os.Stderr, "Session error: %v\n", err)
		},
		OnAudioActivity: func(active bool) {
			logger.Debugf("Assistant speaking: %v", active)
		},
	}

	timeline, err := store.Timeline(ctx, 7)
	if err != nil {
		logger.Warnf("Failed to load timeline snapshot: %v", err)
	}

	opts := []voice.SessionOption{
		voice.WithModel(cfg.Voice.Model),
		voice.WithVoiceName(cfg.Voice.VoiceName),
		voice.WithActivityWindow(cfg.Voice.GetActivityDebounce()),
		voice.WithEventSink(func(ev *types.SessionEvent) {
			logEvent(logger, ev)
		}),
	}
	if m != nil {
		opts = append(opts, voice.WithMetrics(m))
	}

	session := voice.NewSession(cfg.Voice.Endpoint, cfg.Voice.APIKey, input, scheduler, callbacks, opts...)
	if err := session.Connect(ctx, cli.Focus, timeline); err != nil {
		return fmt.Errorf("failed to connect voice session: %w", err)
	}
	defer session.Disconnect()

	<-ctx.Done()
	return nil
}

// createNoteFromTool materializes a createNote tool call into the
// store. Illustration generation happens in the background so the tool
// acknowledgment is not delayed.
func createNoteFromTool(ctx context.Context, store *notes.Store, enricher *ai.Enricher, m *metrics.Metrics, cfg *config.Config, args voice.CreateNoteArgs, logger *logging.Logger) (string, error) {
	kind := notes.Kind(args.Kind)
	if args.Kind == "" {
		kind = notes.KindNote
	}

	note, err := notes.New(args.Content, kind)
	if err != nil {
		return "", err
	}
	if args.ReminderAt != "" {
		if at, err := time.Parse(time.RFC3339, args.ReminderAt); err == nil {
			note.ReminderAt = &at
		} else {
			logger.Warnf("Ignoring unparseable reminder %q: %v", args.ReminderAt, err)
		}
	}
	note.IllustrationPrompt = args.IllustrationPrompt

	if err := store.Create(ctx, note); err != nil {
		return "", err
	}

	if enricher != nil && note.IllustrationPrompt != "" {
		if m != nil {
			m.IllustrationsIssued.Inc()
		}
		go illustrateNote(store, enricher, cfg, note.ID, note.IllustrationPrompt, logger)
	}
	return note.ID, nil
}

// illustrateNote renders an illustration and attaches it to the note.
// Failures are logged only; the note is already stored.
func illustrateNote(store *notes.Store, enricher *ai.Enricher, cfg *config.Config, noteID, prompt string, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	path, err := enricher.Illustrate(ctx, prompt, cfg.AI.IllustrationDir)
	if err != nil {
		logger.Warnf("Illustration failed for note %s: %v", noteID, err)
		return
	}
	if _, err := store.Update(ctx, noteID, notes.Update{IllustrationPath: &path}); err != nil {
		logger.Warnf("Failed to attach illustration to note %s: %v", noteID, err)
		return
	}
	logEvent(logger, types.NewSessionEvent(types.EventTypeIllustrationReady).WithNoteID(noteID))
}

// runAdd stores a single note, enriched when an AI key is configured.
func runAdd(ctx context.Context, store *notes.Store, enricher *ai.Enricher, m *metrics.Metrics, text string, logger *logging.Logger) error {
	content := text
	kind := notes.KindNote
	var reminderAt *time.Time
	prompt := ""

	if enricher != nil {
		start := time.Now()
		enrichment, err := enricher.Enrich(ctx, text)
		if err != nil {
			if m != nil {
				m.RecordEnrichmentFailure(time.Since(start).Seconds())
			}
			fmt.Fprintf(os.Stderr, "Enrichment failed, storing note as-is: %v\n", err)
		} else {
			if m != nil {
				m.RecordEnrichmentSuccess(time.Since(start).Seconds())
			}
			content = enrichment.Content
			kind = enrichment.Kind
			reminderAt = enrichment.ReminderAt
			prompt = enrichment.IllustrationPrompt
			logEvent(logger, types.NewSessionEvent(types.EventTypeEnrichmentComplete))
		}
	}

	note, err := notes.New(content, kind)
	if err != nil {
		return err
	}
	note.ReminderAt = reminderAt
	note.IllustrationPrompt = prompt

	if err := store.Create(ctx, note); err != nil {
		return err
	}
	fmt.Printf("Created %s note %s\n", note.Kind, note.ID)
	return nil
}

// runList prints the recent timeline, newest day first.
func runList(ctx context.Context, store *notes.Store) error {
	timeline, err := store.Timeline(ctx, 14)
	if err != nil {
		return err
	}
	if len(timeline) == 0 {
		fmt.Println("No notes yet.")
		return nil
	}

	for _, entry := range timeline {
		fmt.Printf("%s\n", entry.Day)
		for _, n := range entry.Notes {
			marker := " "
			if n.Done {
				marker = "x"
			}
			fmt.Printf("  [%s] (%s) %s\n", marker, n.Kind, n.Content)
		}
	}
	return nil
}

// runMemo records a short voice memo, stores it as a WAV clip, and
// creates a note pointing at it.
func runMemo(ctx context.Context, store *notes.Store, cfg *config.Config, seconds int) error {
	input := voice.NewMalgoInput(cfg.Audio.CaptureFrameSize)

	frames := make(chan []byte, 256)
	if err := input.Start(func(pcm []byte) {
		select {
		case frames <- pcm:
		default: // recording buffer full, drop the frame
		}
	}); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	fmt.Printf("Recording for %d seconds...\n", seconds)
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()

	var recorded []byte
collect:
	for {
		select {
		case <-ctx.Done():
			break collect
		case <-timer.C:
			break collect
		case frame := <-frames:
			recorded = append(recorded, frame...)
		}
	}
	if err := input.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop capture: %v\n", err)
	}

	// Drain anything delivered before Stop took effect.
drain:
	for {
		select {
		case frame := <-frames:
			recorded = append(recorded, frame...)
		default:
			break drain
		}
	}

	samples, err := audio.BytesToPCM16(recorded)
	if err != nil {
		return fmt.Errorf("failed to decode recording: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("nothing recorded")
	}

	wav, err := audio.EncodeWAV(samples, cfg.Audio.CaptureSampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode memo: %w", err)
	}

	if err := os.MkdirAll(cfg.Audio.ClipDir, 0750); err != nil {
		return fmt.Errorf("failed to create clip directory: %w", err)
	}
	clipPath := filepath.Join(cfg.Audio.ClipDir, uuid.New().String()+".wav")
	if err := os.WriteFile(clipPath, wav, 0600); err != nil {
		return fmt.Errorf("failed to write memo: %w", err)
	}

	note, err := notes.New(fmt.Sprintf("Voice memo (%ds)", seconds), notes.KindNote)
	if err != nil {
		return err
	}
	note.AudioClipPath = clipPath
	if err := store.Create(ctx, note); err != nil {
		return err
	}

	fmt.Printf("Saved memo %s -> %s\n", note.ID, clipPath)
	return nil
}

// playbackLogger records scheduler signals in the session log.
type playbackLogger struct {
	logger *logging.Logger
}

func (p *playbackLogger) PlaybackStarted() {
	logEvent(p.logger, types.NewSessionEvent(types.EventTypePlaybackStarted))
}

func (p *playbackLogger) PlaybackStopped() {
	logEvent(p.logger, types.NewSessionEvent(types.EventTypePlaybackStopped))
}

func (p *playbackLogger) ChunkDropped(reason string) {
	ev := types.NewSessionEvent(types.EventTypeChunkDropped)
	ev.Reason = reason
	logEvent(p.logger, ev)
}

// logEvent writes one line per event so a session transcript can be
// reconstructed from the log file.
func logEvent(logger *logging.Logger, ev *types.SessionEvent) {
	switch {
	case ev.Error != nil:
		logger.Warnf("event=%s error=%v", ev.Type, ev.Error)
	case ev.NoteID != "":
		logger.Infof("event=%s note=%s", ev.Type, ev.NoteID)
	case ev.Reason != "":
		logger.Infof("event=%s reason=%s", ev.Type, ev.Reason)
	default:
		logger.Infof("event=%s", ev.Type)
	}
}

// serveMetrics exposes the Prometheus endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, address string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: address, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("Metrics listening on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("Metrics server failed: %v", err)
	}
}
