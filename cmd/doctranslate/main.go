// =============================================================================
// DocTranslate 主入口
// =============================================================================
// 异步文档翻译服务, 包含 HTTP API, WebSocket 进度推送与 Prometheus 指标
//
// 使用方法:
//
//	doctranslate serve                            # 启动服务
//	doctranslate serve --config config.yaml       # 指定配置文件
//	doctranslate translate paper.pdf --lang English --out paper.en.md
//	doctranslate version                          # 显示版本信息
//	doctranslate health                           # 健康检查
// =============================================================================

// @title DocTranslate API
// @version 1.0.0
// @description 基于大模型的异步文档翻译服务: 分块, 分组并行翻译, 按原顺序拼接.

// @contact.name DocTranslate Team
// @contact.url https://github.com/BaSui01/doctranslate

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/doctranslate/config"
	"github.com/BaSui01/doctranslate/internal/telemetry"
	"github.com/BaSui01/doctranslate/translation"
	"github.com/BaSui01/doctranslate/translation/loader"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags 所有子命令共享的配置来源
type globalFlags struct {
	configPath string
	envFiles   []string
}

func (g *globalFlags) load() (*config.Config, error) {
	l := config.NewLoader().WithDotEnv(g.envFiles...)
	if g.configPath != "" {
		l = l.WithConfigPath(g.configPath)
	}
	cfg, err := l.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "doctranslate",
		Short:         "DocTranslate - LLM document translation service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to config file (YAML)")
	root.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", []string{".env"}, "dotenv files to load before the environment")

	root.AddCommand(
		newServeCmd(g),
		newTranslateCmd(g),
		newVersionCmd(),
		newHealthCmd(),
	)
	return root
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the translation server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			logger.Info("Starting DocTranslate",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := NewServer(cfg, logger)
			if err := srv.Start(); err != nil {
				_ = srv.Shutdown(context.Background())
				return err
			}
			runErr := srv.Wait(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			shutdownErr := srv.Shutdown(shutdownCtx)

			logger.Info("DocTranslate stopped")
			if runErr != nil {
				return runErr
			}
			return shutdownErr
		},
	}
}

// =============================================================================
// 📄 translate 命令
// =============================================================================

type translateFlags struct {
	lang  string
	terms map[string]string
	out   string
}

func newTranslateCmd(g *globalFlags) *cobra.Command {
	f := &translateFlags{}
	cmd := &cobra.Command{
		Use:   "translate <file>",
		Short: "Translate a local document and write the result as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			return runTranslate(cmd, cfg, args[0], f, logger)
		},
	}
	cmd.Flags().StringVarP(&f.lang, "lang", "l", "", "Target language (default from config)")
	cmd.Flags().StringToStringVarP(&f.terms, "terms", "t", nil, "Terminology pairs, e.g. --terms LLM=大语言模型,token=词元")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output path (default <file>.<lang>.md)")
	return cmd
}

func runTranslate(cmd *cobra.Command, cfg *config.Config, path string, f *translateFlags, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	content, err := loader.NewRegistry().Load(ctx, path)
	if err != nil {
		return err
	}

	lang := f.lang
	if lang == "" {
		lang = cfg.Translation.DefaultLanguage
	}

	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger, telemetryAttributes(cfg))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = otelProviders.Shutdown(flushCtx)
	}()

	p := newPipeline(cfg, translation.NopMetrics{}, logger)
	defer func() { _ = p.Close() }()

	if d, err := p.engine.EstimateProcessingTime(content); err == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Translating %s to %s (estimated %s)\n", path, lang, d)
	}

	out, err := p.engine.Translate(ctx, content, lang, translation.Terminology(f.terms),
		func(done, total int, _ []translation.Result) error {
			fmt.Fprintf(cmd.ErrOrStderr(), "  groups %d/%d\n", done, total)
			return nil
		})
	if err != nil {
		return err
	}

	dest := f.out
	if dest == "" {
		dest = defaultOutputPath(path, lang)
	}
	if err := loader.Save(dest, out.Text); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", dest)
	fmt.Fprintf(cmd.ErrOrStderr(), "chunks: %d, failed: %d, tokens in/out: %d/%d\n",
		len(out.Results), out.Failed(), out.Usage.InputTokens, out.Usage.OutputTokens)
	return nil
}

// defaultOutputPath 在原文件旁生成 <name>.<lang>.md
func defaultOutputPath(path, lang string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	suffix := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, lang)
	return base + "." + suffix + ".md"
}

// =============================================================================
// 🏥 健康检查与版本
// =============================================================================

func newHealthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(strings.TrimSuffix(addr, "/") + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "DocTranslate %s\n", Version)
			fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
		},
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
