package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/mileage-service/internal/api/http"
	"github.com/spec-kit/mileage-service/internal/api/http/handlers"
	"github.com/spec-kit/mileage-service/internal/auth"
	"github.com/spec-kit/mileage-service/internal/cache"
	"github.com/spec-kit/mileage-service/internal/config"
	"github.com/spec-kit/mileage-service/internal/events"
	"github.com/spec-kit/mileage-service/internal/observability"
	"github.com/spec-kit/mileage-service/internal/persistence"
	"github.com/spec-kit/mileage-service/internal/repository"
	"github.com/spec-kit/mileage-service/internal/service"
	"github.com/spec-kit/mileage-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	memberRepo := repository.NewMemberRepository(pool)
	ledgerRepo := repository.NewMileageTransactionRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	rankingCache := cache.NewRankingCache(redis.Client, cfg.Ranking.RankingTTL())
	dispatcher := events.NewInMemoryDispatcher()

	memberService := service.NewMemberService(service.MemberDependencies{
		MemberRepo:  memberRepo,
		LedgerRepo:  ledgerRepo,
		Ranking:     rankingCache,
		Dispatcher:  dispatcher,
		BcryptCost:  cfg.Auth.BcryptCost,
		RankingSize: cfg.Ranking.DefaultSize,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		MemberRepo:        memberRepo,
		PasswordResetRepo: resetRepo,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), memberRepo)
	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(memberService, authService),
		Members:        handlers.NewMembersHandler(memberService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
