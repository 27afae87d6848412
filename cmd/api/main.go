package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/app"
	"github.com/KarryViber/Neolish-sub001/internal/authpw"
	"github.com/KarryViber/Neolish-sub001/internal/config"
	"github.com/KarryViber/Neolish-sub001/internal/dify"
	"github.com/KarryViber/Neolish-sub001/internal/email"
	"github.com/KarryViber/Neolish-sub001/internal/export"
	"github.com/KarryViber/Neolish-sub001/internal/gitrepo"
	"github.com/KarryViber/Neolish-sub001/internal/images"
	"github.com/KarryViber/Neolish-sub001/internal/queue"
	"github.com/KarryViber/Neolish-sub001/internal/search"
	"github.com/KarryViber/Neolish-sub001/internal/session"
	"github.com/KarryViber/Neolish-sub001/internal/store"
)

// exportStore adapts the Postgres store to the export renderer's read model.
type exportStore struct {
	store *store.PostgresStore
}

func (e exportStore) GetArticleForExport(ctx context.Context, articleID string) (export.ArticleInfo, error) {
	article, err := e.store.GetArticle(ctx, articleID)
	if err != nil {
		return export.ArticleInfo{}, err
	}
	info := export.ArticleInfo{
		ID:                article.ID,
		TeamID:            article.TeamID,
		Title:             article.Title,
		Content:           article.Content,
		StructuredContent: article.StructuredContent,
		Status:            article.Status,
		WritingPurpose:    article.WritingPurpose,
		UpdatedAt:         article.UpdatedAt,
	}
	if article.UserID != "" {
		if author, err := e.store.GetUserByID(ctx, article.UserID); err == nil {
			info.AuthorName = author.DisplayName
		}
	}
	return info, nil
}

func (e exportStore) GetTeamForExport(ctx context.Context, teamID string) (export.TeamInfo, error) {
	team, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return export.TeamInfo{}, err
	}
	return export.TeamInfo{ID: team.ID, Name: team.Name}, nil
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	var sessions *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		sessions, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer sessions.Close()
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	var difyClient *dify.Client
	if cfg.DifyConfigured() {
		difyClient = dify.New(cfg.DifyAPIEndpoint, cfg.DifyArticleToken, cfg.DifyImageToken, cfg.GenerationTimeout)
	} else {
		log.Printf("WARNING: workflow engine not configured, generation endpoints will refuse requests")
	}

	var objectStore images.ObjectStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := images.NewMinioObjectStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object store init failed: %v", err)
		}
		objectStore = minioStore
	}

	var imageService *images.Service
	if difyClient != nil {
		imageService = images.NewService(images.Options{
			Store:     dataStore,
			Generator: difyClient,
			Objects:   objectStore,
			Timeout:   cfg.GenerationTimeout,
		})
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	// The queue's resume/notify hooks call into the service, and the service
	// submits to the queue; the closures bind svc after both exist.
	var svc *app.Service
	var genQueue *queue.Queue
	if difyClient != nil {
		genQueue = queue.New(queue.Options{
			Store:     dataStore,
			Generator: difyClient,
			Workers:   cfg.QueueWorkers,
			Timeout:   cfg.GenerationTimeout,
			LoadParams: func(ctx context.Context, articleID string) (dify.ArticleInputs, error) {
				return svc.LoadGenerationParams(ctx, articleID)
			},
			OnFinished: func(articleID string, err error) {
				svc.NotifyGenerationFinished(articleID, err)
			},
		})
	}

	opts := app.Options{
		Store:  dataStore,
		Git:    gitService,
		Search: searchService,
		Export: export.NewService(exportStore{store: dataStore}),
		Auth:   authpw.NewService(dataStore),
		Email:  emailService,
	}
	if sessions != nil {
		opts.Sessions = sessions
	}
	if genQueue != nil {
		opts.Queue = genQueue
	}
	if imageService != nil {
		opts.Images = imageService
	}
	svc = app.New(cfg, opts)

	if genQueue != nil {
		if err := genQueue.Resume(ctx); err != nil {
			log.Printf("WARNING: queue resume failed (pending rows retry on next restart): %v", err)
		}
	}

	watcherCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	watcher := queue.NewWatcher(dataStore.TotalPendingCount, 5*time.Second, func() {
		log.Printf(`{"event":"queue_drain","message":"pending generation count decreased"}`)
	})
	go watcher.Run(watcherCtx)

	httpServer := app.NewHTTPServer(svc, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Neolish API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stopWatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if genQueue != nil {
		if err := genQueue.Shutdown(shutdownCtx); err != nil {
			log.Printf("queue drain error: %v", err)
		}
	}
	if imageService != nil {
		if err := imageService.Wait(shutdownCtx); err != nil {
			log.Printf("image jobs drain error: %v", err)
		}
	}
}
