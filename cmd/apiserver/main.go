package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/anomaly"
	"github.com/projectTest192/FoodTrace/internal/database"
	"github.com/projectTest192/FoodTrace/internal/handlers"
	"github.com/projectTest192/FoodTrace/internal/ingest"
	"github.com/projectTest192/FoodTrace/internal/ledger"
	"github.com/projectTest192/FoodTrace/internal/lifecycle"
	"github.com/projectTest192/FoodTrace/internal/pubsub"
	"github.com/projectTest192/FoodTrace/internal/retention"
	"github.com/projectTest192/FoodTrace/internal/routers"
	"github.com/projectTest192/FoodTrace/internal/trace"
	"github.com/projectTest192/FoodTrace/internal/util"
)

// @title               FoodTrace API
// @description         Telemetry ingestion and provenance API for the FoodTrace supply chain backend.
// @version             1.0
// @BasePath            /
func main() {
	// flag values may come from a local .env in development
	_ = godotenv.Load()

	cli.HelpFlag.(*cli.BoolFlag).Usage = "Show help"
	app := &cli.Command{
		Name: "apiserver",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Value:   false,
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("FOODTRACE_DEBUG"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Value:   "0.0.0.0:8080",
				Usage:   "The address and port to listen for HTTP requests on",
				Sources: cli.EnvVars("FOODTRACE_LISTEN"),
			},
			&cli.StringFlag{
				Name:    "db-host",
				Value:   "apiserver-db",
				Usage:   "Database host name",
				Sources: cli.EnvVars("FOODTRACE_DB_HOST"),
			},
			&cli.StringFlag{
				Name:    "db-port",
				Value:   "5432",
				Usage:   "Database port",
				Sources: cli.EnvVars("FOODTRACE_DB_PORT"),
			},
			&cli.StringFlag{
				Name:    "db-user",
				Value:   "apiserver",
				Usage:   "Database user",
				Sources: cli.EnvVars("FOODTRACE_DB_USER"),
			},
			&cli.StringFlag{
				Name:    "db-password",
				Value:   "secret",
				Usage:   "Database password",
				Sources: cli.EnvVars("FOODTRACE_DB_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "db-name",
				Value:   "apiserver",
				Usage:   "Database name",
				Sources: cli.EnvVars("FOODTRACE_DB_NAME"),
			},
			&cli.StringFlag{
				Name:    "db-sslmode",
				Value:   "disable",
				Usage:   "Database ssl mode",
				Sources: cli.EnvVars("FOODTRACE_DB_SSLMODE"),
			},
			&cli.StringFlag{
				Name:    "redis-server",
				Value:   "redis:6379",
				Usage:   "Redis host:port address, used for the broker and the retention store",
				Sources: cli.EnvVars("FOODTRACE_REDIS_SERVER"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Value:   1,
				Usage:   "Redis database to be selected after connecting to the server",
				Sources: cli.EnvVars("FOODTRACE_REDIS_DB"),
			},
			&cli.DurationFlag{
				Name:    "retention-temp",
				Value:   30 * time.Minute,
				Usage:   "Retention horizon for temperature readings",
				Sources: cli.EnvVars("FOODTRACE_RETENTION_TEMP"),
			},
			&cli.DurationFlag{
				Name:    "retention-humidity",
				Value:   30 * time.Minute,
				Usage:   "Retention horizon for humidity readings",
				Sources: cli.EnvVars("FOODTRACE_RETENTION_HUMIDITY"),
			},
			&cli.DurationFlag{
				Name:    "retention-gps",
				Value:   24 * time.Hour,
				Usage:   "Retention horizon for gps readings",
				Sources: cli.EnvVars("FOODTRACE_RETENTION_GPS"),
			},
			&cli.DurationFlag{
				Name:    "retention-probe-interval",
				Value:   15 * time.Second,
				Usage:   "How often a degraded retention store re-probes redis",
				Sources: cli.EnvVars("FOODTRACE_RETENTION_PROBE_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "message-timeout",
				Value:   5 * time.Second,
				Usage:   "Handling timeout per broker message",
				Sources: cli.EnvVars("FOODTRACE_MESSAGE_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "device-offline-after",
				Value:   2 * time.Minute,
				Usage:   "Quiet period after which a device is marked offline",
				Sources: cli.EnvVars("FOODTRACE_DEVICE_OFFLINE_AFTER"),
			},
			&cli.StringFlag{
				Name:    "fabric-network-path",
				Value:   "",
				Usage:   "Path to the fabric network config; empty disables the ledger backend",
				Sources: cli.EnvVars("FOODTRACE_FABRIC_NETWORK_PATH"),
			},
			&cli.StringFlag{
				Name:    "fabric-channel",
				Value:   "mychannel",
				Usage:   "Fabric channel name",
				Sources: cli.EnvVars("FOODTRACE_FABRIC_CHANNEL"),
			},
			&cli.StringFlag{
				Name:    "fabric-chaincode",
				Value:   "foodtrace",
				Usage:   "Fabric chaincode name",
				Sources: cli.EnvVars("FOODTRACE_FABRIC_CHAINCODE"),
			},
			&cli.StringFlag{
				Name:    "fabric-orderer",
				Value:   "localhost:7050",
				Usage:   "Fabric orderer host:port",
				Sources: cli.EnvVars("FOODTRACE_FABRIC_ORDERER"),
			},
			&cli.StringFlag{
				Name:    "fabric-peer-address",
				Value:   "localhost:7051",
				Usage:   "Fabric peer host:port",
				Sources: cli.EnvVars("FOODTRACE_FABRIC_PEER_ADDRESS"),
			},
			&cli.StringFlag{
				Name:    "fabric-msp-id",
				Value:   "Org1MSP",
				Usage:   "Fabric MSP id",
				Sources: cli.EnvVars("FOODTRACE_FABRIC_MSP_ID"),
			},
			&cli.StringFlag{
				Name:    "fabric-msp-config",
				Value:   "",
				Usage:   "Path to the fabric MSP config directory",
				Sources: cli.EnvVars("FOODTRACE_FABRIC_MSP_CONFIG"),
			},
		},

		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, _ = signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
			withLoggerAndDB(ctx, command, func(logger *zap.Logger, db *gorm.DB, dsn string) {
				pprofInit(ctx, command, logger)

				if err := database.Migrations().Migrate(ctx, db); err != nil {
					log.Fatal(err)
				}

				wg := &sync.WaitGroup{}

				redisClient := redis.NewClient(&redis.Options{
					Addr: command.String("redis-server"),
					DB:   int(command.Int("redis-db")),
				})
				defer util.IgnoreError(redisClient.Close)

				horizons := retention.Horizons{
					Temp:     command.Duration("retention-temp"),
					Humidity: command.Duration("retention-humidity"),
					GPS:      command.Duration("retention-gps"),
				}
				store := retention.NewFallback(redisClient, logger.Sugar(), horizons)
				util.GoWithWaitGroup(wg, func() {
					util.RunPeriodically(ctx, command.Duration("retention-probe-interval"), func() {
						store.Probe(ctx)
					})
				})

				backend := ledger.NewNopBackend()
				if path := command.String("fabric-network-path"); path != "" {
					backend = ledger.NewPeerCLI(ledger.PeerCLIConfig{
						NetworkPath: path,
						Channel:     command.String("fabric-channel"),
						Chaincode:   command.String("fabric-chaincode"),
						Orderer:     command.String("fabric-orderer"),
						PeerAddress: command.String("fabric-peer-address"),
						MSPID:       command.String("fabric-msp-id"),
						MSPConfig:   command.String("fabric-msp-config"),
					}, logger.Sugar())
				}

				provenance := ledger.New(db, backend, logger.Sugar())
				machine := lifecycle.New(db, provenance, logger.Sugar())
				tracer := trace.New(db, provenance, store, logger.Sugar())

				ingestConfig := ingest.DefaultConfig()
				ingestConfig.MessageTimeout = command.Duration("message-timeout")
				ingestConfig.OfflineAfter = command.Duration("device-offline-after")
				ingestor := ingest.New(db, store, anomaly.NewDetector(anomaly.DefaultThresholds()), provenance, logger.Sugar(), ingestConfig)

				broker := pubsub.NewRedisBroker(redisClient, logger.Sugar())
				defer util.IgnoreError(broker.Close)
				if err := ingestor.Run(ctx, broker, wg); err != nil {
					log.Fatal(err)
				}

				api, err := handlers.NewAPI(logger.Sugar(), db, store, provenance, machine, tracer, ingestor)
				if err != nil {
					log.Fatal(err)
				}

				router, err := routers.NewAPIRouter(routers.APIRouterOptions{
					Logger: logger.Sugar(),
					Api:    api,
				})
				if err != nil {
					log.Fatal(err)
				}

				httpServer := &http.Server{
					Addr:              command.String("listen"),
					Handler:           router,
					ReadTimeout:       5 * time.Second,
					ReadHeaderTimeout: 5 * time.Second,
					WriteTimeout:      10 * time.Second,
				}
				defer util.IgnoreError(httpServer.Close)

				serveErrors := make(chan error, 1)
				util.GoWithWaitGroup(wg, func() {
					if err := httpServer.ListenAndServe(); err != nil {
						serveErrors <- err
					}
				})

				// Wait for a shutdown signal or a server error
				select {
				case err := <-serveErrors:
					serveErrors <- err // put it back
				case <-ctx.Done():
				}

				// Try to do a graceful shutdown for 5 seconds...
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				go func() {
					_ = httpServer.Shutdown(shutdownCtx)
				}()

				workersDone := make(chan struct{})
				go func() {
					wg.Wait()
					close(workersDone)
				}()

				err = nil
			forLoop:
				for {
					select {
					case err = <-serveErrors: // save any errors
					case <-shutdownCtx.Done():
						break forLoop
					case <-workersDone:
						break forLoop
					}
				}
				if err != nil && err != http.ErrServerClosed {
					log.Fatal(err)
				}
			})
			return nil
		},
	}
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "rollback",
		Usage: "Rollback the last database migration",
		Action: func(ctx context.Context, command *cli.Command) error {
			withLoggerAndDB(ctx, command, func(logger *zap.Logger, db *gorm.DB, dsn string) {
				if err := database.Migrations().RollbackLast(ctx, db); err != nil {
					log.Fatal(err)
				}
			})
			return nil
		},
	})

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func getLogger(command *cli.Command) *zap.Logger {
	var logger *zap.Logger
	var err error
	// set the log level
	if command.Bool("debug") {
		logConfig := zap.NewProductionConfig()
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		logger, err = logConfig.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return logger
}

func withLoggerAndDB(ctx context.Context, command *cli.Command, f func(logger *zap.Logger, db *gorm.DB, dsn string)) {
	logger := getLogger(command)
	defer util.IgnoreError(logger.Sync)

	db, dsn, err := database.NewDatabase(
		ctx,
		logger.Sugar(),
		command.String("db-host"),
		command.String("db-user"),
		command.String("db-password"),
		command.String("db-name"),
		command.String("db-port"),
		command.String("db-sslmode"),
	)
	if err != nil {
		log.Fatal(err)
	}

	f(logger, db, dsn)
}
