package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/skillforge/internal/authoring"
	"github.com/pavelanni/skillforge/internal/exam"
	"github.com/pavelanni/skillforge/internal/grading"
	"github.com/pavelanni/skillforge/internal/handler"
	appI18n "github.com/pavelanni/skillforge/internal/i18n"
	"github.com/pavelanni/skillforge/internal/llm"
	"github.com/pavelanni/skillforge/internal/llm/prompts"
	"github.com/pavelanni/skillforge/internal/metrics"
	"github.com/pavelanni/skillforge/internal/model"
	"github.com/pavelanni/skillforge/internal/similarity"
	"github.com/pavelanni/skillforge/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "skillforge",
		Short:        "Local quiz service with AI grading and tutoring",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("db", "skillforge.db", "SQLite database path")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-file", "", "Also write logs to this file, rotated by size")

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `skillforge --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addAuthoringFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("pass-threshold", model.DefaultPassThreshold, "Default pass mark in percent for new quizzes")
	f.Duration("dedup-window", authoring.DefaultDedupWindow, "How far back to look for duplicate questions (0 disables)")
	f.Float64("dedup-threshold", similarity.DefaultThreshold, "Similarity at which two questions count as duplicates")
	f.Bool("drop-duplicates", false, "Drop duplicate questions instead of only reporting them")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":3000", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default language for feedback (en, zh)")
	f.String("completion-backend", "cli", "Completion backend (cli, openai)")
	f.String("completion-command", "", "Command of the cli backend (default \""+llm.DefaultCommand+" --print\")")
	f.StringSlice("completion-args", nil, "Arguments of the cli backend")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the openai backend")
	f.String("llm-model", "", "Model name")
	f.Duration("completion-timeout", grading.DefaultTimeout, "Upper bound for one completion call")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Int("grading-concurrency", 4, "Free-text answers graded in parallel per submission")
	f.Duration("ai-request-ttl", exam.DefaultRequestTTL, "How long finished tutor requests stay pollable")
	f.Float64("ai-rate-limit", 1, "Tutor requests per second (0 = unlimited)")
	f.Int("ai-rate-burst", 5, "Tutor request burst size")
	f.String("admin-password", "", "Password for admin endpoints (or set SKILLFORGE_ADMIN_PASSWORD)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	addAuthoringFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import quizzes from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addAuthoringFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all submissions as JSON",
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

// setupLogging installs the default slog logger. The returned func closes the
// log file, if any.
func setupLogging(v *viper.Viper) func() {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if path := v.GetString("log-file"); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, lj)
		closeFn = func() { _ = lj.Close() }
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeFn
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SKILLFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("skillforge")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/skillforge")
	v.AddConfigPath("/etc/skillforge")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func authoringOptions(v *viper.Viper) authoring.Options {
	return authoring.Options{
		PassThreshold:  v.GetFloat64("pass-threshold"),
		DedupWindow:    v.GetDuration("dedup-window"),
		DedupThreshold: v.GetFloat64("dedup-threshold"),
		DropDuplicates: v.GetBool("drop-duplicates"),
	}
}

func serverConfig(v *viper.Viper) (model.ServerConfig, error) {
	cfg := model.ServerConfig{
		PassThreshold:      v.GetFloat64("pass-threshold"),
		GradingConcurrency: v.GetInt("grading-concurrency"),
		CompletionTimeout:  v.GetDuration("completion-timeout"),
		AIRequestTTL:       v.GetDuration("ai-request-ttl"),
		AIRateLimit:        v.GetFloat64("ai-rate-limit"),
		AIRateBurst:        v.GetInt("ai-rate-burst"),
		DedupWindow:        v.GetDuration("dedup-window"),
		DedupThreshold:     v.GetFloat64("dedup-threshold"),
		DropDuplicates:     v.GetBool("drop-duplicates"),
		CORSOrigins:        v.GetStringSlice("cors-origins"),
	}
	if pw := v.GetString("admin-password"); pw != "" {
		hash, err := handler.HashPassword(pw)
		if err != nil {
			return cfg, fmt.Errorf("hash admin password: %w", err)
		}
		cfg.AdminPasswordHash = hash
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v)()

	cfg, err := serverConfig(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	completer, err := llm.New(llm.Config{
		Backend: v.GetString("completion-backend"),
		Model:   v.GetString("llm-model"),
		Command: v.GetString("completion-command"),
		Args:    v.GetStringSlice("completion-args"),
		BaseURL: v.GetString("llm-url"),
		APIKey:  v.GetString("llm-key"),
	})
	if err != nil {
		return fmt.Errorf("create completer: %w", err)
	}
	if p, ok := completer.(llm.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.Warn("completion backend unavailable, free-text grading will need manual review", "error", err)
		} else {
			slog.Info("completion backend OK", "backend", v.GetString("completion-backend"))
		}
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	engine, err := grading.New(completer, promptVariant, cfg.GradingConcurrency, cfg.CompletionTimeout)
	if err != nil {
		return fmt.Errorf("create grading engine: %w", err)
	}

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := exam.NewRequestTracker(cfg.AIRequestTTL)
	go tracker.Run(ctx)

	exams := exam.New(db, engine, completer, tracker, exam.Config{
		CompletionTimeout: cfg.CompletionTimeout,
		AIRateLimit:       cfg.AIRateLimit,
		AIRateBurst:       cfg.AIRateBurst,
	})
	defer exams.Close()

	if cfg.AdminPasswordHash == nil {
		slog.Warn("no admin password configured, admin endpoints are open")
	}
	authors := authoring.New(db, authoring.Options{
		PassThreshold:  cfg.PassThreshold,
		DedupWindow:    cfg.DedupWindow,
		DedupThreshold: cfg.DedupThreshold,
		DropDuplicates: cfg.DropDuplicates,
	})
	h := handler.New(exams, authors, cfg.AdminPasswordHash)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.NewRouter(h, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db", v.GetString("db"),
			"lang", lang,
			"backend", v.GetString("completion-backend"),
			"prompt_variant", promptVariant,
			"grading_concurrency", cfg.GradingConcurrency,
			"completion_timeout", cfg.CompletionTimeout,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v)()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc := authoring.New(db, authoringOptions(v))
	ctx := cmd.Context()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := svc.Import(ctx, path, data, false)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if res.Status != authoring.ImportCreated {
			continue
		}
		slog.Info("imported quiz", "path", path, "quiz_id", res.Result.Quiz.ID,
			"questions", len(res.Result.Questions), "duplicates", len(res.Result.Duplicates))
		for _, d := range res.Result.Duplicates {
			slog.Warn("question repeats a recent one", "path", path, "question", d.Number,
				"matched_quiz", d.MatchedQuizID, "matched_question", d.MatchedNumber, "exact", d.Exact)
		}
	}

	total, err := db.QuizCount()
	if err != nil {
		return fmt.Errorf("count quizzes: %w", err)
	}
	slog.Info("import finished", "files", len(args), "quizzes", total)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v)()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAllSubmissions()
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported submissions", "count", len(export.Submissions), "output", outPath)
	return nil
}
