package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bandou-movie/internal/config"
	"github.com/iliyamo/bandou-movie/internal/database"
	"github.com/iliyamo/bandou-movie/internal/fetch"
	"github.com/iliyamo/bandou-movie/internal/handler"
	"github.com/iliyamo/bandou-movie/internal/logging"
	"github.com/iliyamo/bandou-movie/internal/mail"
	"github.com/iliyamo/bandou-movie/internal/middleware"
	"github.com/iliyamo/bandou-movie/internal/queue"
	"github.com/iliyamo/bandou-movie/internal/repository"
	"github.com/iliyamo/bandou-movie/internal/router"
	"github.com/iliyamo/bandou-movie/internal/service"
	"github.com/iliyamo/bandou-movie/internal/storage"
)

func main() {
	cfg := config.Load() // Load environment config
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logging.Fatal().Err(err).Msg("mysql unavailable")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logging.Fatal().Err(err).Msg("schema migration failed")
	}

	// Redis is optional: without it rate limiting and the image cache are
	// off and password reset answers 503.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logging.Warn().Msg("redis unreachable, running without rate limits, image cache and password reset")
	} else {
		defer rdb.Close()
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.AMQPURL != "" {
		events = queue.NewAMQPPublisher(cfg.AMQPURL)
		consumer := &queue.Consumer{URL: cfg.AMQPURL}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("activity consumer stopped")
			}
		}()
	}

	media := storage.NewLocal(cfg.MediaRoot, cfg.MediaBaseURL)

	// Repositories
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	logins := repository.NewLoginRecordRepo(db)
	movies := repository.NewMovieRepo(db)
	ratings := repository.NewRatingRepo(db)
	comments := repository.NewCommentRepo(db)

	// Services
	ratingSvc := service.NewRatingService(db, movies, ratings, repository.NewScoreAggregator(), events)
	commentSvc := service.NewCommentService(db, movies, comments, media, events)
	recommender := service.NewRecommender(movies, media)
	analytics := service.NewAnalytics(movies, ratings)
	reset := service.NewPasswordReset(rdb, users, tokens, mail.NewSMTPSender(cfg.SMTP), cfg.BcryptCost)

	// Handlers
	authH := handler.NewAuthHandler(cfg, users, tokens, logins, media, reset, events)
	movieH := handler.NewMovieHandler(movies, ratingSvc, commentSvc, recommender, media)
	adminMovieH := handler.NewAdminMovieHandler(movies, analytics, media)
	adminUserH := handler.NewAdminUserHandler(users, tokens, logins, media, cfg.LoginRecordLimit)
	proxyH := handler.NewImageProxyHandler(fetch.New(fetch.Options{Name: "image_proxy"}))

	opts := router.Options{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		BodyLimit:   "10M",
		MediaRoot:   cfg.MediaRoot,
		RateLimit:   middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		AuthLimit:   middleware.NewTokenBucket(config.LoadAuthRateLimitConfig(), rdb),
		ImageCache:  middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}

	e := echo.New() // Create Echo instance
	router.Setup(e, opts)
	router.RegisterRoutes(e, handler.NewHealthHandler(db, rdb), opts)
	router.RegisterAuth(e, authH, opts)
	router.RegisterPublic(e, movieH, proxyH, opts)
	router.RegisterUser(e, movieH, opts)
	router.RegisterAdmin(e, adminMovieH, adminUserH, opts)

	addr := ":" + cfg.Port
	go func() {
		logging.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
	logging.Info().Msg("server stopped")
}
