package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/ragserve/ragserve/internal/ai"
	"github.com/ragserve/ragserve/internal/config"
	"github.com/ragserve/ragserve/internal/corpus"
	"github.com/ragserve/ragserve/internal/embedcache"
	"github.com/ragserve/ragserve/internal/handler"
	"github.com/ragserve/ragserve/internal/index"
	"github.com/ragserve/ragserve/internal/job"
	"github.com/ragserve/ragserve/internal/langdetect"
	"github.com/ragserve/ragserve/internal/middleware"
	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/jwt"
	"github.com/ragserve/ragserve/internal/schedule"
	"github.com/ragserve/ragserve/internal/service"
	"github.com/ragserve/ragserve/internal/watch"
)

func main() {
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragserve",
		Short: "retrieval pipeline over a local document corpus",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to config.json")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newRebuildCmd(&configPath),
		newQueryCmd(&configPath),
		newTokenCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

// buildSearchService wires provider, cache, corpus source, index backend and
// store into the one service both the CLI and the server run on.
func buildSearchService(cfg *config.Config) (*service.SearchService, corpus.Source, error) {
	embedProvider, err := ai.NewEmbedProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(embedProvider, cfg.AI.EmbedModel)
	embedder = embedcache.Wrap(embedder, cfg.AI.CacheSize, time.Duration(cfg.AI.CacheTTLMin)*time.Minute)

	var generator ai.IGenerator
	if cfg.AI.GenModel != "" {
		genProvider, err := ai.NewGenProvider(cfg.AI.Provider, cfg.AI.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init gen provider: %w", err)
		}
		generator = ai.NewGenerator(genProvider, cfg.AI.GenModel)
	}

	source, err := corpus.New(cfg.Corpus)
	if err != nil {
		return nil, nil, fmt.Errorf("init corpus source: %w", err)
	}
	backend, err := index.New(cfg.Index)
	if err != nil {
		return nil, nil, fmt.Errorf("init index backend: %w", err)
	}
	store := index.NewStore(backend, source, embedder, cfg.Chunking)
	search := service.NewSearchService(
		store,
		embedder,
		generator,
		langdetect.New(),
		time.Duration(cfg.AI.TimeoutSeconds)*time.Second,
		cfg.DefaultTopK,
	)
	return search, source, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	var watchDocs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			search, source, err := buildSearchService(cfg)
			if err != nil {
				return err
			}
			return runServer(cfg, search, source, watchDocs)
		},
	}
	cmd.Flags().BoolVar(&watchDocs, "watch", false, "rebuild automatically when the docs folder changes")
	return cmd
}

func runServer(cfg *config.Config, search *service.SearchService, source corpus.Source, watchDocs bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := handler.RouterDeps{
		Search:    handler.NewSearchHandler(search),
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		RateLimit: time.Duration(cfg.RateLimitSecs) * time.Second,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	if cfg.Schedule.ReindexCron != "" {
		scheduler := schedule.NewCronScheduler()
		if err := scheduler.AddJob(job.NewReindexJob(search), cfg.Schedule.ReindexCron); err != nil {
			return err
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	if watchDocs {
		dirSource, ok := source.(interface{ Dir() string })
		if !ok {
			return fmt.Errorf("--watch requires a local corpus source, got %s", source.Name())
		}
		watcher := watch.New(dirSource.Dir(), 2*time.Second, func(ctx context.Context) error {
			_, err := search.Rebuild(ctx)
			return err
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logutil.GetLogger(ctx).Error("corpus watcher stopped", zap.Error(err))
			}
		}()
	}

	logutil.GetLogger(ctx).Info("http server listening", zap.Int("port", cfg.Port))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func newRebuildCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "chunk, embed and index the corpus from scratch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			search, _, err := buildSearchService(cfg)
			if err != nil {
				return err
			}
			start := time.Now()
			stats, err := search.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Rebuilt index: %d vectors (dim=%d) in %.2fs\n",
				stats.Vectors, stats.Dim, time.Since(start).Seconds())
			return nil
		},
	}
}

func newQueryCmd(configPath *string) *cobra.Command {
	var topK int
	var answer bool
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "search the index for the top matching chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			search, _, err := buildSearchService(cfg)
			if err != nil {
				return err
			}
			if answer {
				res, err := search.Answer(cmd.Context(), args[0], topK)
				if err != nil {
					return err
				}
				printResults(res.QueryResult)
				fmt.Printf("\nAnswer:\n%s\n", res.Answer)
				return nil
			}
			res, err := search.Query(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			printResults(res)
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "k", 0, "number of results (default from config)")
	cmd.Flags().BoolVar(&answer, "answer", false, "synthesize an answer from the retrieved chunks")
	return cmd
}

func printResults(res model.QueryResult) {
	fmt.Printf("Detected language: %s\n", res.Lang)
	fmt.Printf("Query: %s\n\n", res.Query)
	if len(res.Results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range res.Results {
		fmt.Printf("%d. %s (chunk %d) score=%.4f\n   %s\n", i+1, r.Source, r.ChunkIndex, r.Score, r.Text)
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var name string
	var ttlHours int
	cmd := &cobra.Command{
		Use:   "token",
		Short: "mint an operator token for the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			if ttlHours <= 0 {
				ttlHours = cfg.Auth.TTLHours
			}
			token, err := jwt.GenerateToken(name, []byte(cfg.Auth.JWTSecret), time.Duration(ttlHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "admin", "operator name embedded in the token")
	cmd.Flags().IntVar(&ttlHours, "ttl", 0, "token lifetime in hours (default from config)")
	return cmd
}
