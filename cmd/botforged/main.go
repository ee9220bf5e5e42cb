package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"botforge/internal/config"
	"botforge/internal/credentials"
	"botforge/internal/engine"
	"botforge/internal/httpapi"
	"botforge/internal/pipeline"
	"botforge/internal/training"
	"botforge/internal/watch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagSet carries CLI overrides applied on top of the config file.
type flagSet struct {
	configPath  string
	addr        string
	port        int
	dataDir     string
	workDir     string
	engineKind  string
	engineURL   string
	credentials string
	cors        bool
	debug       bool
	maxConc     int
	skipTrain   bool
	watchMode   bool
}

func newRootCmd() *cobra.Command {
	fl := &flagSet{}
	root := &cobra.Command{
		Use:           "botforged",
		Short:         "Build, train and serve a conversational service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&fl.configPath, "config", "c", "", "Config file (.yaml/.json/.toml)")
	root.PersistentFlags().BoolVar(&fl.debug, "debug", false, "Verbose logging")
	root.PersistentFlags().StringVar(&fl.dataDir, "data-dir", "", "Training data directory")
	root.PersistentFlags().StringVar(&fl.workDir, "work-dir", "", "Working directory for image roots and artifacts")
	root.PersistentFlags().StringVar(&fl.engineKind, "engine", "", "Engine backend: stub|rest|subprocess")
	root.PersistentFlags().StringVar(&fl.engineURL, "engine-url", "", "Base URL for the rest engine")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline, then serve until interrupted",
		RunE:  func(cmd *cobra.Command, args []string) error { return fl.run() },
	}
	runCmd.Flags().StringVar(&fl.addr, "addr", "", "HTTP listen address, e.g. :5005 (defaults BOTFORGE_ADDR)")
	runCmd.Flags().IntVarP(&fl.port, "port", "p", 0, "HTTP listen port (shorthand for --addr :PORT)")
	runCmd.Flags().BoolVar(&fl.cors, "cors", false, "Allow cross-origin requests from any origin")
	runCmd.Flags().IntVar(&fl.maxConc, "max-concurrent", 0, "Max in-flight chat requests")
	runCmd.Flags().StringVar(&fl.credentials, "credentials", "", "Channel credentials file")
	runCmd.Flags().BoolVar(&fl.skipTrain, "skip-training", false, "Skip the training stage")

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Run image assembly and training without serving",
		RunE:  func(cmd *cobra.Command, args []string) error { return fl.build() },
	}
	buildCmd.Flags().BoolVar(&fl.skipTrain, "skip-training", false, "Skip the training stage")
	buildCmd.Flags().BoolVar(&fl.watchMode, "watch", false, "Rebuild whenever training data changes")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Run the training stage only",
		RunE:  func(cmd *cobra.Command, args []string) error { return fl.train() },
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate training data without calling the engine",
		RunE:  func(cmd *cobra.Command, args []string) error { return fl.validate() },
	}

	root.AddCommand(runCmd, buildCmd, trainCmd, validateCmd)
	return root
}

// loadConfig merges file config, environment defaults and flag overrides.
func (fl *flagSet) loadConfig() (config.Config, error) {
	var cfg config.Config
	if fl.configPath != "" {
		var err error
		cfg, err = config.Load(fl.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if fl.port != 0 {
		cfg.Port = fl.port
		cfg.Addr = fmt.Sprintf(":%d", fl.port)
	}
	if fl.addr != "" {
		cfg.Addr = fl.addr
	}
	if cfg.Addr == "" {
		if v := os.Getenv("BOTFORGE_ADDR"); v != "" {
			cfg.Addr = v
		}
	}
	if fl.dataDir != "" {
		cfg.DataDir = fl.dataDir
	}
	if fl.workDir != "" {
		cfg.WorkDir = fl.workDir
	}
	if fl.engineKind != "" {
		cfg.Engine = fl.engineKind
	}
	if fl.engineURL != "" {
		cfg.EngineURL = fl.engineURL
	}
	if fl.credentials != "" {
		cfg.Credentials = fl.credentials
	}
	if fl.cors {
		cfg.CORS = true
	}
	if fl.debug {
		cfg.Debug = true
	}
	if fl.maxConc != 0 {
		cfg.MaxConcurrent = fl.maxConc
	}
	if fl.skipTrain {
		f := false
		cfg.Train = &f
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	var w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func newEngine(cfg config.Config, log zerolog.Logger) (engine.Engine, error) {
	switch cfg.Engine {
	case "stub":
		return engine.NewStub(), nil
	case "rest":
		url := cfg.EngineURL
		if url == "" {
			url = "http://localhost:5005"
		}
		return engine.NewRESTClient(url), nil
	case "subprocess":
		cmd := cfg.EngineCommand
		if len(cmd) == 0 {
			cmd = []string{"rasa"}
		}
		return engine.NewSubprocess(engine.SubprocessConfig{
			Command: cmd,
			Debug:   cfg.Debug,
			Logger:  log,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q (want stub|rest|subprocess)", cfg.Engine)
	}
}

func (fl *flagSet) newPipeline(cfg config.Config, log zerolog.Logger) (*pipeline.Pipeline, engine.Engine, error) {
	eng, err := newEngine(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	creds, err := credentials.Load(cfg.Credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("load credentials: %w", err)
	}
	p := pipeline.New(pipeline.Options{
		Spec:          cfg.BuildSpec(),
		DataDir:       cfg.DataDir,
		WorkDir:       cfg.WorkDir,
		Engine:        eng,
		Credentials:   creds,
		Logger:        log,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	return p, eng, nil
}

// stageName turns a typed pipeline error into the stage diagnostic a failed
// build must surface.
func stageName(err error) string {
	switch {
	case pipeline.IsBuildError(err):
		return "assembling"
	case pipeline.IsTrainingError(err):
		return "training"
	case pipeline.IsLaunchError(err):
		return "launching"
	}
	return "unknown"
}

func (fl *flagSet) run() error {
	cfg, err := fl.loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Debug)
	p, eng, err := fl.newPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := p.Run(ctx, cfg.Addr)
	if err != nil {
		return fmt.Errorf("pipeline failed at %s stage: %w", stageName(err), err)
	}

	httpapi.SetLogger(log)
	if cfg.CORS {
		httpapi.SetCORSOptions(true,
			[]string{"*"},
			[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
			[]string{"Accept", "Content-Type"})
	}
	srv := &http.Server{Handler: httpapi.NewMux(p)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("attempt", p.AttemptID()).Msg("botforged serving")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown (Ctrl+C / SIGTERM)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func (fl *flagSet) build() error {
	cfg, err := fl.loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Debug)

	buildOnce := func(ctx context.Context) error {
		p, eng, err := fl.newPipeline(cfg, log)
		if err != nil {
			return err
		}
		defer eng.Close()
		if err := p.Build(ctx); err != nil {
			return fmt.Errorf("pipeline failed at %s stage: %w", stageName(err), err)
		}
		log.Info().Str("attempt", p.AttemptID()).Str("image", p.Image().Root).Msg("build complete")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := buildOnce(ctx); err != nil {
		if !fl.watchMode {
			return err
		}
		log.Error().Err(err).Msg("build failed, watching for changes")
	}
	if !fl.watchMode {
		return nil
	}
	log.Info().Str("dir", cfg.DataDir).Msg("watching training data")
	err = watch.Run(ctx, cfg.DataDir, watch.DefaultDebounce, log, func() {
		if err := buildOnce(ctx); err != nil {
			log.Error().Err(err).Msg("rebuild failed")
		}
	})
	if err == context.Canceled {
		return nil
	}
	return err
}

func (fl *flagSet) train() error {
	cfg, err := fl.loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Debug)
	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	data, err := training.Load(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("pipeline failed at training stage: %w", err)
	}
	if err := data.Validate(); err != nil {
		return fmt.Errorf("pipeline failed at training stage: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	art, err := eng.Train(ctx, data, cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("pipeline failed at training stage: %w", err)
	}
	log.Info().Str("artifact", art.Path).Str("fingerprint", art.Fingerprint).
		Int64("bytes", art.SizeBytes).Msg("training complete")
	return nil
}

func (fl *flagSet) validate() error {
	cfg, err := fl.loadConfig()
	if err != nil {
		return err
	}
	data, err := training.Load(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("invalid training data: %w", err)
	}
	if err := data.Validate(); err != nil {
		return fmt.Errorf("invalid training data: %w", err)
	}
	fmt.Printf("ok: %d intents, %d nlu blocks, %d stories, %d rules\n",
		len(data.Domain.Intents), len(data.NLU), len(data.Stories), len(data.Rules))
	return nil
}
