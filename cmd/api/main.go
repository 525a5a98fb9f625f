package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	httpadp "lendsmart-backend/internal/adapter/http"
	"lendsmart-backend/internal/adapter/ledgerhttp"
	appmw "lendsmart-backend/internal/adapter/middleware"
	"lendsmart-backend/internal/adapter/repository/mysql"
	"lendsmart-backend/internal/config"
	"lendsmart-backend/internal/infrastructure/cache"
	"lendsmart-backend/internal/infrastructure/db"
	loanuc "lendsmart-backend/internal/usecase/loan"
	"lendsmart-backend/internal/usecase/reconcile"
	"lendsmart-backend/internal/usecase/reputation"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.Fatal(err)
	}
	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatal(err)
	}

	loans := mysql.NewLoanRepository(gdb)
	events := mysql.NewEventRepository(gdb)
	uow := mysql.NewGormUoW(gdb)
	chain := ledgerhttp.New(cfg.LedgerGatewayURL, cfg.LedgerSubmitTimeout)

	engine := reconcile.NewEngine(loans, events, uow, chain, cfg.LedgerSubmitTimeout)
	loanUC := loanuc.NewUsecase(loans, events, engine)
	reputationUC := reputation.NewUsecase(loans)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prober := reconcile.NewProber(engine, loans, cfg.ProbeInterval, cfg.ProbeWorkers)
	go prober.Run(ctx)

	h := httpadp.NewHandler()
	lh := httpadp.NewLoanHandler(loanUC)
	rh := httpadp.NewReputationHandler(reputationUC)

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Logger(), echomw.Recover())
	e.Use(appmw.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second))

	e.GET("/health", h.Health)
	e.POST("/loans", lh.Apply)
	e.GET("/loans/:loan_id", lh.Get)
	e.GET("/actors/:actor_id/loans", lh.List)
	e.POST("/loans/:loan_id/fund", lh.Fund)
	e.POST("/loans/:loan_id/disburse", lh.Disburse)
	e.POST("/loans/:loan_id/repay", lh.Repay)
	e.POST("/loans/:loan_id/collateral", lh.DepositCollateral)
	e.POST("/loans/:loan_id/risk-score", lh.SetRiskScore)
	e.POST("/loans/:loan_id/cancel", lh.Cancel)
	e.POST("/loans/:loan_id/default", lh.MarkDefaulted)
	e.GET("/reputation/:actor_id", rh.Score)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := ":" + cfg.AppPort
	log.Printf("listening on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Println(err)
	}
}
