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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examforge/internal/app"
	"github.com/pavelanni/examforge/internal/export"
	"github.com/pavelanni/examforge/internal/handler"
	"github.com/pavelanni/examforge/internal/handler/views"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/ingest"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/store"
)

const generateTimeout = 5 * time.Minute

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examforge",
		Short:        "Generate new exam papers from reference exams with an LLM",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), renderCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examforge --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(f *pflag.FlagSet) {
	f.StringP("lang", "l", "zh", "Exam and UI language (zh, en)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-url", "https://generativelanguage.googleapis.com/v1beta/openai/", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM (or set EXAMFORGE_LLM_KEY)")
	f.String("llm-model", "gemini-2.5-pro", "LLM model name")
	f.String("document-mode", string(llm.DocumentInline), "How PDFs reach the model (inline, text)")
}

func addExportFlags(f *pflag.FlagSet) {
	f.Bool("capture", true, "Rasterize exports in headless Chrome (false always produces the print page)")
	f.String("chrome", "", "Path to Chrome or Chromium (empty = autodetect)")
	f.String("export-dir", "", "Also keep exported PDFs in this directory")
	f.String("s3-endpoint", "", "S3-compatible endpoint for exported PDFs (overrides --export-dir)")
	f.String("s3-access-key", "", "S3 access key")
	f.String("s3-secret-key", "", "S3 secret key")
	f.String("s3-bucket", "examforge", "S3 bucket for exported PDFs")
	f.Bool("s3-ssl", true, "Use TLS for the S3 endpoint")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam generator",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", ":memory:", "SQLite database path (:memory: keeps exams for the process lifetime)")
	f.Bool("include-answers", true, "Show the answer key by default")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exams)")
	f.Bool("secure-cookies", false, "Set Secure flag on cookies")
	addCommonFlags(f)
	addLLMFlags(f)
	addExportFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate FILE...",
		Short: "Generate an exam from reference files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "Exam file to write, .json or .yaml (default <title>.json)")
	f.Bool("pdf", false, "Also export the exam as PDF next to the exam file")
	f.Bool("answers", true, "Include the answer key in the PDF")
	addCommonFlags(f)
	addLLMFlags(f)
	addExportFlags(f)
	return cmd
}

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an exam file as printable HTML",
		RunE:  runRender,
	}
	f := cmd.Flags()
	f.String("exam", "", "Exam file (.json or .yaml)")
	f.Bool("answers", false, "Include the answer key")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(f)
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam file as an A4 PDF",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("exam", "", "Exam file (.json or .yaml)")
	f.Bool("answers", false, "Include the answer key")
	f.StringP("output", "o", "", "PDF path (default <title>.pdf)")
	addCommonFlags(f)
	addExportFlags(f)
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examforge")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examforge")
	v.AddConfigPath("/etc/examforge")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func initLang(v *viper.Viper) (string, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return "", fmt.Errorf("init i18n: %w", err)
	}
	return lang, nil
}

func newGenerator(v *viper.Viper) (*llm.Client, error) {
	mode, err := llm.ParseDocumentMode(v.GetString("document-mode"))
	if err != nil {
		return nil, err
	}
	if v.GetString("llm-key") == "" {
		slog.Warn("no LLM API key set (--llm-key or EXAMFORGE_LLM_KEY)")
	}
	return llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), mode), nil
}

// newExporter builds the export pipeline from flags. printDir receives
// print pages when rasterization fails; empty serves them inline.
func newExporter(v *viper.Viper, printDir string) (*export.Exporter, error) {
	var capturer export.Capturer
	if v.GetBool("capture") {
		capturer = &export.ChromeCapturer{ExecPath: v.GetString("chrome")}
	}

	var printer export.Printer
	if printDir != "" {
		printer = export.FilePrinter{Dir: printDir}
	}

	var sink export.Sink
	switch {
	case v.GetString("s3-endpoint") != "":
		s, err := export.NewMinioSink(
			v.GetString("s3-endpoint"),
			v.GetString("s3-access-key"),
			v.GetString("s3-secret-key"),
			v.GetBool("s3-ssl"),
			v.GetString("s3-bucket"),
		)
		if err != nil {
			return nil, fmt.Errorf("connect export bucket: %w", err)
		}
		sink = s
	case v.GetString("export-dir") != "":
		sink = export.FileSink{Dir: v.GetString("export-dir")}
	}
	return export.New(capturer, printer, sink), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang, err := initLang(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	gen, err := newGenerator(v)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := gen.Ping(pingCtx); err != nil {
		slog.Warn("LLM health check failed, generation may not work", "url", v.GetString("llm-url"), "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}
	cancel()

	exporter, err := newExporter(v, "")
	if err != nil {
		return err
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		IncludeAnswers: v.GetBool("include-answers"),
		Lang:           lang,
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
	}

	ctrl := app.New(db, gen, ingest.New(), lang)
	h, err := handler.New(ctrl, exporter, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"db", v.GetString("db"),
		"include_answers", cfg.IncludeAnswers,
		"capture", v.GetBool("capture"),
		"base_path", basePath,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang, err := initLang(v)
	if err != nil {
		return err
	}

	var files []ingest.File
	for _, path := range args {
		f, err := ingest.FromPath(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		files = append(files, f)
	}

	db, err := store.New(":memory:")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	gen, err := newGenerator(v)
	if err != nil {
		return err
	}
	ctrl := app.New(db, gen, ingest.New(), lang)

	ctx, cancel := context.WithTimeout(cmd.Context(), generateTimeout)
	defer cancel()

	batch := ctrl.Ingest(ctx, files)
	for _, fe := range batch.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s\n", fe)
	}
	exam, err := ctrl.Generate(ctx, batch.Assets)
	if err != nil {
		return err
	}

	out := v.GetString("output")
	if out == "" {
		out = model.SafeFileName(exam.Title, "exam", ".json")
	}
	if err := model.SaveExamFile(out, exam); err != nil {
		return err
	}
	slog.Info("wrote exam", "path", out, "title", exam.Title, "questions", exam.QuestionCount())

	if !v.GetBool("pdf") {
		return nil
	}
	pdfPath := strings.TrimSuffix(out, filepath.Ext(out)) + ".pdf"
	return exportExam(cmd.Context(), v, exam, lang, v.GetBool("answers"), pdfPath)
}

func loadExam(v *viper.Viper) (model.Exam, error) {
	return model.LoadExamFile(v.GetString("exam"))
}

func runRender(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang, err := initLang(v)
	if err != nil {
		return err
	}
	exam, err := loadExam(v)
	if err != nil {
		return err
	}

	ctx := appI18n.Background()
	doc := app.Document(ctx, exam, v.GetBool("answers"))

	outPath := v.GetString("output")
	w := cmd.OutOrStdout()
	if outPath != "" && outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := views.PrintPage(doc, lang, "", false).Render(ctx, w); err != nil {
		return fmt.Errorf("render exam: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang, err := initLang(v)
	if err != nil {
		return err
	}
	exam, err := loadExam(v)
	if err != nil {
		return err
	}
	out := v.GetString("output")
	if out == "" {
		out = model.SafeFileName(exam.Title, "exam", ".pdf")
	}
	return exportExam(cmd.Context(), v, exam, lang, v.GetBool("answers"), out)
}

// exportExam writes exam as a PDF to out, or a print page beside it when
// the PDF cannot be produced.
func exportExam(ctx context.Context, v *viper.Viper, exam model.Exam, lang string, answers bool, out string) error {
	exporter, err := newExporter(v, filepath.Dir(out))
	if err != nil {
		return err
	}

	lctx := appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))
	doc := app.Document(lctx, exam, answers)
	region, err := views.ExportRegion(lctx, doc, lang, appI18n.T(lctx, "PrintHint"))
	if err != nil {
		return fmt.Errorf("render exam: %w", err)
	}

	res, err := exporter.Export(ctx, region, filepath.Base(out))
	if err != nil {
		return err
	}
	if res.Kind == export.ResultPrinted {
		slog.Warn("PDF export unavailable, open the print page instead", "page", res.Location, "reason", res.Fallback)
		return nil
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	slog.Info("wrote pdf", "path", out, "pages", res.Pages, "stored", res.Location)
	return nil
}
