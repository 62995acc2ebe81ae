// Файл: main.go

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"identity-system/internal/controllers"
	"identity-system/internal/repositories"
	"identity-system/internal/routes"
	"identity-system/internal/services"
	"identity-system/internal/syncer"
	"identity-system/internal/tenant"
	"identity-system/pkg/config"
	"identity-system/pkg/database/postgresql"
	apperrors "identity-system/pkg/errors"
	applogger "identity-system/pkg/logger"
	"identity-system/pkg/middleware"
	"identity-system/pkg/service"
	"identity-system/pkg/utils"
)

func main() {
	e := echo.New()
	logger := applogger.NewLogger()
	cfg := config.New()

	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("!!! ОБНАРУЖЕНА ПАНИКА (PANIC) !!!",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				httpErr := apperrors.NewHttpError(http.StatusInternalServerError, "Внутренняя ошибка сервера", err, nil)
				utils.ErrorResponse(c, httpErr, logger)
			}
			return err
		},
	}))

	// Подключения к базам.
	dbConn := postgresql.ConnectDB(cfg.Postgres.DSN)
	defer dbConn.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("не удалось подключиться к Redis", zap.Error(err), zap.String("address", cfg.Redis.Address))
	}

	jwtSvc := service.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.AccessTokenTTL)
	authMW := middleware.NewAuthMiddleware(jwtSvc, logger)

	// Репозитории.
	txManager := repositories.NewTxManager(dbConn)
	dsRepo := repositories.NewDataSourceRepository(dbConn, txManager, logger)
	taskRepo := repositories.NewSyncTaskRepository(dbConn, logger)
	syncStore := repositories.NewSyncStore(dbConn, txManager, logger)
	tenantRepo := repositories.NewTenantRepository(dbConn, syncStore, txManager, logger)
	lockRepo := repositories.NewSyncLockRepository(redisClient, logger)

	// Конвейер синхронизации.
	projector := tenant.NewProjector(tenantRepo, logger)
	runner := syncer.NewRunner(syncStore, taskRepo, projector, syncer.Options{
		ApplyBatchSize: cfg.Sync.ApplyBatchSize,
	}, logger)

	// Сервисы.
	notifier := services.NewLogNotifier(logger)
	syncService := services.NewSyncService(dsRepo, taskRepo, lockRepo, runner, notifier, cfg.Sync, logger)
	dataSourceService := services.NewDataSourceService(dsRepo, logger)
	directoryService := services.NewDirectoryService(syncStore, tenantRepo, logger)

	routes.InitRoutes(e, routes.Controllers{
		DataSource: controllers.NewDataSourceController(dataSourceService, logger),
		Sync:       controllers.NewSyncController(syncService, logger),
		Directory:  controllers.NewDirectoryController(directoryService, logger),
	}, authMW, logger)

	// Планировщик живёт до сигнала останова.
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	scheduler := services.NewScheduler(dsRepo, taskRepo, syncService, cfg.Sync.SchedulerTick, logger)
	go scheduler.Run(schedulerCtx)

	go func() {
		logger.Info("🚀 Сервер запущен", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Ошибка запуска сервера", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopScheduler()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("сервер остановлен с ошибкой", zap.Error(err))
	}
	logger.Info("сервер остановлен")
}
