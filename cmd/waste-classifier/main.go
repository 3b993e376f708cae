package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/waste-classifier/internal/camera"
	"github.com/zombor/waste-classifier/internal/classifier"
	"github.com/zombor/waste-classifier/internal/predicting"
	"github.com/zombor/waste-classifier/internal/workflow"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// predictorOptions collects the flags that select and configure a backend
type predictorOptions struct {
	kind        string
	url         string
	scale       string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
	openaiKey   string
	openaiURL   string
	openaiModel string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("waste-classifier")
	var (
		port           = fs.IntLong("port", 3000, "HTTP server port")
		predictorType  = fs.StringLong("predictor", "http", "Predictor type: 'http', 'gemini', 'ollama' or 'openai'")
		predictorURL   = fs.StringLong("predictor-url", predicting.DefaultBaseURL, "Base URL of the /predict service")
		scale          = fs.StringLong("confidence-scale", "fraction", "Confidence scale reported by the predictor: 'fraction' (0..1) or 'percent' (0..100)")
		labels         = fs.StringLong("labels", "binary", "Label vocabulary: 'binary' or 'waste-type'")
		labelsFile     = fs.StringLong("labels-file", "", "YAML label vocabulary file (overrides --labels)")
		requestTimeout = fs.DurationLong("request-timeout", 30*time.Second, "Timeout for a single classification")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		openaiKey      = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiURL      = fs.StringLong("openai-url", "", "OpenAI-compatible API base URL (optional)")
		openaiModel    = fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name")
		redisAddr      = fs.StringLong("redis-addr", "", "Redis address for caching predictions (optional)")
		redisPassword  = fs.StringLong("redis-password", "", "Redis password")
		redisDB        = fs.IntLong("redis-db", 0, "Redis database number")
		cacheTTL       = fs.DurationLong("cache-ttl", 24*time.Hour, "How long cached predictions are kept")
		cameraURL      = fs.StringLong("camera-url", "", "Snapshot URL of an HTTP camera (optional)")
		cameraFacing   = fs.StringLong("camera-facing", string(camera.Environment), "Preferred camera: 'environment' or 'user'")
		cameraWidth    = fs.IntLong("camera-width", 1920, "Preferred camera width")
		cameraHeight   = fs.IntLong("camera-height", 1080, "Preferred camera height")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat      = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		_              = fs.StringLong("config", "", "Config file (flag-name value per line)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("WASTE_CLASSIFIER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vocabulary, err := loadVocabulary(*labels, *labelsFile)
	if err != nil {
		slog.Error("Failed to load label vocabulary", "labels", *labels, "file", *labelsFile, "error", err)
		os.Exit(1)
	}

	// Initialize predictor based on type
	predictor, err := newPredictor(vocabulary, predictorOptions{
		kind:        *predictorType,
		url:         *predictorURL,
		scale:       *scale,
		geminiKey:   *geminiKey,
		geminiModel: *geminiModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
		openaiKey:   *openaiKey,
		openaiURL:   *openaiURL,
		openaiModel: *openaiModel,
	})
	if err != nil {
		slog.Error("Failed to initialize predictor", "type", *predictorType, "error", err)
		os.Exit(1)
	}

	if *redisAddr != "" {
		slog.Info("Enabling prediction cache", "redis", *redisAddr, "ttl", *cacheTTL)
		client := redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: *redisPassword,
			DB:       *redisDB,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			slog.Warn("Redis is not reachable; predictions will not be cached until it is", "error", err)
		}
		cancel()

		predictor = predicting.NewCached(predictor, predicting.NewRedisCache(client), *cacheTTL, *predictorType, vocabulary)
	}
	defer predictor.Close()

	if pinger, ok := predictor.(predicting.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		switch err := pinger.Ping(pingCtx); {
		case errors.Is(err, predicting.ErrPingUnsupported):
			slog.Debug("Classification service reachability not checked", "predictor", *predictorType)
		case err != nil:
			slog.Warn("Classification service is not reachable yet", "predictor", *predictorType, "error", err)
		default:
			slog.Info("Classification service is reachable", "predictor", *predictorType)
		}
		cancel()
	}

	// Initialize camera
	var device camera.Device = camera.None{}
	if *cameraURL != "" {
		snapshot, err := camera.NewSnapshot(*cameraURL)
		if err != nil {
			slog.Error("Failed to initialize camera", "url", *cameraURL, "error", err)
			os.Exit(1)
		}
		slog.Info("Using HTTP camera", "url", *cameraURL)
		device = snapshot
	}

	facing := camera.Facing(*cameraFacing)
	if facing != camera.Environment && facing != camera.User {
		slog.Error("Invalid camera facing", "facing", *cameraFacing, "valid", "environment or user")
		os.Exit(1)
	}

	controller := workflow.NewController(predictor, device, workflow.Config{
		Constraints: camera.Constraints{
			Facing: facing,
			Width:  *cameraWidth,
			Height: *cameraHeight,
		},
		RequestTimeout: *requestTimeout,
	})

	server := classifier.NewServer(controller, version)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")

		// Closing the controller ends event streams and waiting requests
		controller.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the default slog logger from the log flags
func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", format)
	}
}

// loadVocabulary resolves --labels, with --labels-file taking precedence
func loadVocabulary(name, file string) (*predicting.Vocabulary, error) {
	if file == "" {
		return predicting.VocabularyByName(name)
	}
	vocabulary, err := predicting.LoadVocabulary(file)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded label vocabulary", "file", file, "labels", vocabulary.Labels())
	return vocabulary, nil
}

// newPredictor builds the configured backend
func newPredictor(vocabulary *predicting.Vocabulary, opts predictorOptions) (predicting.Predictor, error) {
	switch opts.kind {
	case "http":
		scale, err := predicting.ParseScale(opts.scale)
		if err != nil {
			return nil, err
		}
		slog.Info("Initializing HTTP predictor...", "url", opts.url, "scale", scale)
		return predicting.NewRemote(opts.url, vocabulary, scale)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := opts.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini predictor...", "model", opts.geminiModel)
		return predicting.NewGemini(apiKey, opts.geminiModel, vocabulary)
	case "ollama":
		slog.Info("Initializing Ollama predictor...", "url", opts.ollamaURL, "model", opts.ollamaModel)
		return predicting.NewOllama(opts.ollamaURL, opts.ollamaModel, vocabulary)
	case "openai":
		apiKey := opts.openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI API key is required. Set --openai-key flag or OPENAI_API_KEY environment variable")
		}
		slog.Info("Initializing OpenAI predictor...", "url", opts.openaiURL, "model", opts.openaiModel)
		return predicting.NewOpenAI(apiKey, opts.openaiURL, opts.openaiModel, vocabulary)
	default:
		return nil, fmt.Errorf("invalid predictor type %q: valid types are http, gemini, ollama or openai", opts.kind)
	}
}
