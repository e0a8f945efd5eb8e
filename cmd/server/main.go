package main // Entry point package

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/config"
	"github.com/samuraifrenchienft/music-legends-engine/internal/database"
	"github.com/samuraifrenchienft/music-legends-engine/internal/events"
	"github.com/samuraifrenchienft/music-legends-engine/internal/handler"
	"github.com/samuraifrenchienft/music-legends-engine/internal/lock"
	"github.com/samuraifrenchienft/music-legends-engine/internal/mint"
	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/purchase"
	"github.com/samuraifrenchienft/music-legends-engine/internal/queue"
	"github.com/samuraifrenchienft/music-legends-engine/internal/ratelimit"
	"github.com/samuraifrenchienft/music-legends-engine/internal/repository"
	"github.com/samuraifrenchienft/music-legends-engine/internal/router"
	"github.com/samuraifrenchienft/music-legends-engine/internal/serial"
	"github.com/samuraifrenchienft/music-legends-engine/internal/supply"
	"github.com/samuraifrenchienft/music-legends-engine/internal/worker"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	cfg := config.Load()
	eng := config.LoadEngine()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("main: open database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	defer rdb.Close()

	// Supply side: season-scoped caps plus the serial counters.
	var supplyStore supply.Store
	if eng.SupplyStore == config.StoreMemory {
		mem := supply.NewMemoryStore()
		mem.PutSeason(eng.SeasonID, model.SeasonActive)
		supplyStore = mem
	} else {
		supplyStore = supply.NewMySQLStore(db)
	}
	serials := serial.NewAllocator(rdb)
	ledger := supply.NewLedger(supplyStore, serials)

	// Purchase side: idempotency records and the durable queue.
	var purchaseStore purchase.Store
	if eng.PurchaseStore == config.StoreMemory {
		purchaseStore = purchase.NewMemoryStore()
	} else {
		purchaseStore = purchase.NewMySQLStore(db)
	}
	jobs := queue.NewRedisQueue(rdb, eng.QueueMaxAttempts, eng.QueueClaimTimeout)
	intake := purchase.NewService(purchaseStore, jobs, nil, eng.SeasonID)

	locks := lock.NewManager(rdb, eng.LockTTL, eng.LockWaitTimeout, eng.LockRetryInterval)
	limiter := ratelimit.NewLimiter(rdb, eng.RateLimitRules)

	cards := repository.NewCardRepo(db)
	publisher := events.NewPublisher(events.BrokerURL())
	pipeline := mint.NewPipeline(ledger, purchaseStore, cards, publisher)

	// Background workers settle the queued jobs.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(jobs, locks, eng.WorkerCount, eng.QueuePollInterval)
	pool.Register("mint", pipeline.ProcessMint)
	pool.Register("burn", pipeline.ProcessBurn)
	pool.Register("trade_finalize", pipeline.ProcessTrade)
	pool.Start(ctx)

	go func() {
		if err := events.StartMintAuditConsumer(); err != nil {
			log.Printf("main: mint audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db)))

	cardHandler := handler.NewCardHandler(cards, jobs)
	purchaseHandler := handler.NewPurchaseHandler(intake, cards, limiter)
	router.RegisterEngine(e,
		purchaseHandler,
		handler.NewSupplyHandler(ledger, limiter, eng.SeasonID),
		cardHandler,
		limiter,
	)
	router.RegisterAdmin(e, cfg.JWTSecret,
		handler.NewSeasonHandler(repository.NewSeasonRepo(db), ledger),
		handler.NewQueueHandler(jobs),
		cardHandler,
		purchaseHandler,
	)

	go func() {
		<-ctx.Done()
		log.Printf("main: shutting down")
		if err := e.Shutdown(context.Background()); err != nil {
			log.Printf("main: http shutdown: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s season=%s workers=%d)", addr, cfg.Env, eng.SeasonID, eng.WorkerCount)
	if err := e.Start(addr); err != nil {
		log.Printf("main: http server stopped: %v", err)
	}
	stop()
	pool.Wait()
}
