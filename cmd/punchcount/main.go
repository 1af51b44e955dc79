package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/ogier/pflag"

	"github.com/ayusman/punchcounter/internal/app"
	"github.com/ayusman/punchcounter/internal/config"
	"github.com/ayusman/punchcounter/internal/emitter"
	"github.com/ayusman/punchcounter/internal/pose"
	"github.com/ayusman/punchcounter/internal/report"
	"github.com/ayusman/punchcounter/internal/server"
	"github.com/ayusman/punchcounter/internal/store"
)

// videoList implements flag.Value to collect multiple --video flags
type videoList []string

func (v *videoList) String() string {
	return strings.Join(*v, ",")
}

func (v *videoList) Set(value string) error {
	*v = append(*v, value)
	return nil
}

type options struct {
	videos     videoList
	poses      string
	configPath string
	envFile    string
	serve      bool
	debug      bool

	// Values below override the configuration only when their flag is set
	fps        int
	threshold  float64
	minGap     int
	dbPath     string
	dataDir    string
	parallel   int
	saveFrames bool
	addr       string
	set        map[string]bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("punchcount", flag.ContinueOnError)
	fs.Var(&opts.videos, "video", "video file to analyze (can be specified multiple times)")
	fs.StringVar(&opts.poses, "poses", "", "folder of frame_NNNNN.json pose files to analyze")
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&opts.envFile, "env", ".env", "dotenv file with PUNCHCOUNT_* overrides")
	fs.BoolVar(&opts.serve, "serve", false, "serve the HTTP API after processing")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.IntVar(&opts.fps, "fps", 5, "sampled frames per second")
	fs.Float64Var(&opts.threshold, "threshold", 0.02, "wrist speed threshold per sampled frame")
	fs.IntVar(&opts.minGap, "min-gap", 5, "sampled frames merged into one punch")
	fs.StringVar(&opts.dbPath, "db", "", "SQLite database path")
	fs.StringVar(&opts.dataDir, "data-dir", "", "directory for results and processed frames")
	fs.IntVar(&opts.parallel, "parallel", 2, "videos analyzed concurrently")
	fs.BoolVar(&opts.saveFrames, "save-frames", false, "write sampled frames as JPEG")
	fs.StringVar(&opts.addr, "addr", "", "HTTP listen address for --serve")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	// Bare arguments are treated as videos
	opts.videos = append(opts.videos, fs.Args()...)

	if len(opts.videos) == 0 && opts.poses == "" && !opts.serve {
		return nil, errors.New("nothing to do: pass --video, --poses or --serve")
	}
	if len(opts.videos) > 0 && opts.poses != "" {
		return nil, errors.New("--video and --poses are mutually exclusive")
	}

	return opts, nil
}

// apply copies the flags that were set onto cfg.
func (o *options) apply(cfg *config.Config) {
	if o.set["fps"] {
		cfg.TargetFPS = o.fps
	}
	if o.set["threshold"] {
		cfg.Motion.Threshold = o.threshold
	}
	if o.set["min-gap"] {
		cfg.Motion.MinGap = o.minGap
	}
	if o.set["db"] {
		cfg.DBPath = o.dbPath
	}
	if o.set["data-dir"] {
		cfg.DataDir = o.dataDir
		if !o.set["db"] {
			cfg.DBPath = ""
		}
	}
	if o.set["parallel"] {
		cfg.Parallelism = o.parallel
	}
	if o.set["save-frames"] {
		cfg.SaveFrames = o.saveFrames
	}
	if o.set["addr"] {
		cfg.Server.Addr = o.addr
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "punchcount: %v\n", err)
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "punchcount: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Punch Counter")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publisher app.Publisher
	if cfg.MQTT.Enabled() {
		p := emitter.NewMQTTPublisher(cfg.MQTT)
		if err := p.Connect(ctx); err != nil {
			slog.Warn("mqtt unavailable, results will not be published", "error", err)
		} else {
			defer p.Disconnect()
			publisher = p
		}
	}

	var hub *server.EventHub
	var onProgress func(app.Progress)
	if opts.serve {
		hub = server.NewEventHub()
		defer hub.Close()
		onProgress = hub.Publish
	}

	estimatorConfig := pose.Config{
		Python:          cfg.MediaPipe.Python,
		Script:          cfg.MediaPipe.Script,
		ModelComplexity: cfg.MediaPipe.ModelComplexity,
		MinConfidence:   cfg.MediaPipe.MinConfidence,
	}

	a, err := app.New(app.Config{
		Store:      st,
		Motion:     cfg.Motion,
		TargetFPS:  cfg.TargetFPS,
		DataDir:    cfg.DataDir,
		SaveFrames: cfg.SaveFrames,
		NewEstimator: func() (pose.Estimator, error) {
			return pose.NewMediaPipeEstimator(estimatorConfig)
		},
		Publisher:  publisher,
		OnProgress: onProgress,
	})
	if err != nil {
		return err
	}

	if err := analyze(ctx, a, opts, cfg.Parallelism); err != nil {
		return err
	}

	if !opts.serve {
		return nil
	}
	return serve(ctx, a, st, hub, cfg)
}

func analyze(ctx context.Context, a *app.App, opts *options, parallelism int) error {
	switch {
	case opts.poses != "":
		fmt.Printf("Processing pose folder: %s\n", opts.poses)
		res, err := a.AnalyzePoses(ctx, opts.poses)
		if err != nil {
			return err
		}
		printResults(a, res)

	case len(opts.videos) == 1:
		fmt.Printf("Processing video: %s\n", opts.videos[0])
		res, err := a.AnalyzeVideo(ctx, opts.videos[0])
		if err != nil {
			return err
		}
		printResults(a, res)

	case len(opts.videos) > 1:
		fmt.Printf("Processing %d videos, %d at a time\n", len(opts.videos), parallelism)
		results, err := a.AnalyzeBatch(ctx, opts.videos, parallelism)
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("%s: failed: %v\n", r.Path, r.Err)
				continue
			}
			printResults(a, r.Results)
		}
		return err
	}

	return nil
}

func printResults(a *app.App, res *report.Results) {
	fmt.Printf("Results saved to %s\n", filepath.Join(a.ResultsDir(), report.FileName(res.Video)))
	fmt.Printf("Total punches: %d (left %d, right %d)\n", res.Total, res.Left, res.Right)
}

func serve(ctx context.Context, a *app.App, st *store.Store, hub *server.EventHub, cfg *config.Config) error {
	srv := server.New(server.Config{
		StaticDir: cfg.Server.StaticDir,
		Store:     st,
		Analyzer:  a,
		Events:    hub,
	})
	defer srv.Close()
	httpServer := srv.HTTPServer(cfg.Server.Addr)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
