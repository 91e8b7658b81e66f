package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/api"
	"github.com/meridianbank/backoffice/internal/auth"
	"github.com/meridianbank/backoffice/internal/config"
	"github.com/meridianbank/backoffice/internal/db"
	"github.com/meridianbank/backoffice/internal/middleware"
	"github.com/meridianbank/backoffice/internal/notify"
	"github.com/meridianbank/backoffice/internal/observ"
	"github.com/meridianbank/backoffice/internal/repository/postgres"
	"github.com/meridianbank/backoffice/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	pool := database.Pool()
	userRepo := postgres.NewUserStore(pool)
	roleRepo := postgres.NewRoleStore(pool)
	permRepo := postgres.NewPermissionStore(pool)
	groupRepo := postgres.NewGroupStore(pool)
	documentRepo := postgres.NewDocumentStore(pool)
	requestRepo := postgres.NewDeleteRequestStore(pool)
	taskRepo := postgres.NewTaskStore(pool)
	notificationRepo := postgres.NewNotificationStore(pool)

	issuer := auth.NewIssuer(cfg.AccessTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenSecret, cfg.RefreshTokenTTL)
	refreshStore := auth.NewRefreshStore(redisClient, cfg.RefreshTokenTTL)
	hub := notify.NewHub(logger)

	authHandler := api.NewAuthHandler(userRepo, issuer, refreshStore, logger)
	userHandler := api.NewUserHandler(userRepo, roleRepo, logger)
	groupHandler := api.NewGroupHandler(groupRepo, logger)
	roleHandler := api.NewRoleHandler(roleRepo, permRepo, logger)
	documentHandler := api.NewDocumentHandler(documentRepo, requestRepo, groupRepo, userRepo, files, logger)
	requestHandler := api.NewDeleteRequestHandler(requestRepo, files, logger)
	taskHandler := api.NewTaskHandler(taskRepo, files, logger)
	notificationHandler := api.NewNotificationHandler(notificationRepo, hub, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := gin.New()
	srv.Use(gin.Recovery())

	// Auth gates: who may enter. Permission gates: what they may do.
	// Both run on every request; nothing is cached between calls.
	anyIdentity := middleware.RequireAnyIdentity(issuer, userRepo)
	adminOnly := middleware.RequireAdmin(issuer, userRepo)
	userOnly := middleware.RequireUser(issuer, userRepo)
	perm := func(name string) gin.HandlerFunc {
		return middleware.RequirePermission(permRepo, logger, name)
	}

	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := srv.Group("/v1")

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/login", authHandler.LoginUser)
		authRoutes.POST("/admin/login", authHandler.LoginAdmin)
		authRoutes.POST("/refresh", authHandler.Refresh)
		authRoutes.POST("/logout", authHandler.Logout)
	}

	me := v1.Group("/me", anyIdentity)
	{
		me.GET("", authHandler.Me)
		me.PUT("", authHandler.UpdateMe)
	}

	users := v1.Group("/users", adminOnly, perm(middleware.PermUserManage))
	{
		users.POST("", userHandler.Create)
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.PUT("/:id/role", userHandler.ChangeRole)
		users.PUT("/:id/groups", userHandler.ReplaceGroups)
		users.DELETE("/:id", userHandler.Delete)
	}

	groups := v1.Group("/groups", adminOnly, perm(middleware.PermGroupManage))
	{
		groups.POST("", groupHandler.Create)
		groups.GET("", groupHandler.List)
		groups.GET("/:id", groupHandler.Get)
		groups.GET("/:id/descendants", groupHandler.Descendants)
		groups.PUT("/:id", groupHandler.Update)
		groups.DELETE("/:id", groupHandler.Delete)
	}

	roles := v1.Group("/roles", adminOnly, perm(middleware.PermRoleManage))
	{
		roles.GET("", roleHandler.ListRoles)
		roles.GET("/:id/permissions", roleHandler.RolePermissions)
		roles.POST("/:id/permissions", roleHandler.AssignPermission)
		roles.DELETE("/:id/permissions/:permID", roleHandler.UnassignPermission)
	}

	permissions := v1.Group("/permissions", adminOnly, perm(middleware.PermRoleManage))
	{
		permissions.GET("", roleHandler.ListPermissions)
		permissions.POST("", roleHandler.CreatePermission)
	}

	// Documents serve both identity classes; group scope narrows the
	// view inside the handlers.
	documents := v1.Group("/documents", anyIdentity)
	{
		documents.GET("", perm(middleware.PermDocumentRead), documentHandler.List)
		documents.GET("/:id", perm(middleware.PermDocumentRead), documentHandler.Get)
		documents.GET("/:id/download", perm(middleware.PermDocumentRead), documentHandler.Download)
		documents.POST("", perm(middleware.PermDocumentCreate), documentHandler.Upload)
		documents.PUT("/:id", perm(middleware.PermDocumentUpdate), documentHandler.Update)
		documents.DELETE("/:id", perm(middleware.PermDocumentDelete), documentHandler.Delete)
	}

	deleteRequests := v1.Group("/delete-requests", adminOnly, perm(middleware.PermDocumentDelete))
	{
		deleteRequests.GET("", requestHandler.ListPending)
		deleteRequests.POST("/:id/approve", requestHandler.Approve)
		deleteRequests.POST("/:id/reject", requestHandler.Reject)
	}

	tasks := v1.Group("/tasks", anyIdentity)
	{
		tasks.GET("", perm(middleware.PermTaskRead), taskHandler.List)
		tasks.GET("/:id", perm(middleware.PermTaskRead), taskHandler.Get)
		tasks.GET("/:id/files", perm(middleware.PermTaskRead), taskHandler.ListFiles)
		tasks.GET("/:id/files/:fileID/download", perm(middleware.PermTaskRead), taskHandler.DownloadFile)
		tasks.POST("/:id/files", perm(middleware.PermTaskRead), taskHandler.UploadFile)
	}

	taskAdmin := v1.Group("/tasks", adminOnly, perm(middleware.PermTaskManage))
	{
		taskAdmin.POST("", taskHandler.Create)
		taskAdmin.PUT("/:id/status", taskHandler.UpdateStatus)
		taskAdmin.POST("/:id/assignees", taskHandler.AddAssignee)
		taskAdmin.DELETE("/:id/assignees/:userID", taskHandler.RemoveAssignee)
		taskAdmin.DELETE("/:id", taskHandler.Delete)
	}

	// The per-assignee status axis belongs to the assignee alone.
	v1.PUT("/tasks/:id/my-status", userOnly, taskHandler.UpdateMyStatus)

	notifications := v1.Group("/notifications")
	{
		notifications.POST("", adminOnly, perm(middleware.PermNotifyManage), notificationHandler.Broadcast)
		notifications.GET("", userOnly, notificationHandler.List)
		notifications.GET("/unread-count", userOnly, notificationHandler.UnreadCount)
		notifications.GET("/stream", userOnly, notificationHandler.Stream)
		notifications.PUT("/:id/read", userOnly, notificationHandler.MarkRead)
	}

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting backoffice API",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
