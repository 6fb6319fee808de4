package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/student-management/internal/auth"
	"github.com/fathima-sithara/student-management/internal/config"
	"github.com/fathima-sithara/student-management/internal/database"
	"github.com/fathima-sithara/student-management/internal/handlers"
	"github.com/fathima-sithara/student-management/internal/identity"
	"github.com/fathima-sithara/student-management/internal/logger"
	"github.com/fathima-sithara/student-management/internal/middleware"
	"github.com/fathima-sithara/student-management/internal/schools"
	"github.com/fathima-sithara/student-management/internal/server"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	sugar := zl.Sugar()
	sugar.Infof("Starting student-management in %s environment on port %d", cfg.App.Env, cfg.App.Port)

	db, mongoClient, err := database.ConnectMongo(cfg.Mongo.URI, cfg.Mongo.Database, sugar)
	if err != nil {
		sugar.Fatal(err)
	}

	idCtx := identity.NewContext(db, identity.ContextConfig{
		UserCollection: cfg.Mongo.UserCollection,
		RoleCollection: cfg.Mongo.RoleCollection,
		EnsureIndexes:  cfg.Mongo.EnsureIndexes,
	})
	userStore, err := identity.NewUserStore(idCtx)
	if err != nil {
		sugar.Fatal(err)
	}
	roleStore, err := identity.NewRoleStore(idCtx)
	if err != nil {
		sugar.Fatal(err)
	}

	users := auth.NewUserManager(userStore, cfg.Auth.BcryptCost, cfg.Auth.LockoutThreshold, cfg.LockoutWindow)
	signIn := auth.NewSignInManager(users, cfg.Auth.JWTSecret, cfg.AccessTTL)
	schoolRepo := schools.NewMongoSchoolRepo(db, cfg.Mongo.SchoolCollection)

	var rl *middleware.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rl = middleware.NewRateLimiter(rdb, "login_rl", cfg.Redis.LoginLimit, cfg.LoginWindow)
		defer func() {
			if err := rdb.Close(); err != nil {
				sugar.Errorf("Redis client close error: %v", err)
			}
		}()
	} else {
		sugar.Warn("Redis not configured; login rate limiting disabled")
	}

	h := handlers.NewHandler(users, signIn, userStore, roleStore, schoolRepo, zl)
	app := server.New(cfg, h, rl, zl)

	go func() {
		listenAddr := fmt.Sprintf(":%d", cfg.App.Port)
		sugar.Infof("Server listening on %s", listenAddr)
		if err := app.Listen(listenAddr); err != nil {
			sugar.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	sugar.Info("Shutting down server...")

	ctxShut, cancelShut := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShut()

	if err := app.ShutdownWithContext(ctxShut); err != nil {
		sugar.Errorf("Fiber app shutdown error: %v", err)
	}
	if err := mongoClient.Disconnect(ctxShut); err != nil {
		sugar.Errorf("MongoDB disconnect error: %v", err)
	}

	sugar.Info("Graceful shutdown complete")
}
