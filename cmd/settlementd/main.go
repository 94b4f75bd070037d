package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xclera/matrix-core/src/common"
	"github.com/xclera/matrix-core/src/ethapi"
	"github.com/xclera/matrix-core/src/matrix"
	"github.com/xclera/matrix-core/src/postgres"
	"github.com/xclera/matrix-core/src/settlementapi"
	"gopkg.in/yaml.v2"
)

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := os.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg := matrix.Config{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	logLevel := "info"
	flag.StringVar(&cfg.ListenAddress, "listen", cfg.ListenAddress, "address to serve the settlement api on, default `:8080`")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, `address of the redis instance backing the tx replay guard"`)
	flag.StringVar(&cfg.EthRPC, "eth", cfg.EthRPC, `address of the eth node used for payment verification"`)
	flag.StringVar(&cfg.TreasuryWallet, "treasury", cfg.TreasuryWallet, `company treasury wallet"`)
	flag.StringVar(&cfg.RootWallet, "root", cfg.RootWallet, `root member wallet, bootstrapped at the max level"`)
	flag.BoolVar(&cfg.Mock, "mock", cfg.Mock, "run on in-memory storage without chain verification")
	flag.StringVar(&logLevel, "loglevel", logLevel, "zap log level, default `info`")
	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing settlementd")
	log.Printf("\tlisten:        %s", cfg.ListenAddress)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\teth node:      %s", cfg.EthRPC)
	log.Printf("\ttreasury:  	 %s", cfg.TreasuryWallet)
	log.Printf("\troot:  		 %s", cfg.RootWallet)
	log.Printf("\tmock:  		 %t", cfg.Mock)
	log.Println("----------------------------------")

	logger := common.ConfigureZap(common.ParseLevel(logLevel))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store matrix.Store
	var guard *matrix.TxGuard
	var verifier matrix.PaymentVerifier
	if cfg.Mock {
		store = matrix.NewMemStore()
	} else {
		store = postgres.NewStore(cfg.PostgresConfig)
		if err := postgres.EnsureSchema(ctx); err != nil {
			panic(errors.Wrap(err, "failed ensuring db schema"))
		}
		if cfg.RedisAddress != "" {
			rd := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
			if err := rd.Ping(ctx).Err(); err != nil {
				panic(errors.Wrapf(err, "failed to connect to redis at %s", cfg.RedisAddress))
			}
			guard = matrix.NewTxGuard(rd, "settled_tx_refs")
			defer rd.Close()
		}
		if cfg.EthRPC != "" {
			ea, err := ethapi.NewEthApi(ctx, cfg.EthRPC, cfg.TokenDecimals, logger)
			if err != nil {
				panic(err)
			}
			defer ea.Close()
			verifier = ea
		}
	}

	engine, err := matrix.NewEngine(cfg, store, guard, verifier, logger)
	if err != nil {
		panic(err)
	}
	if err := engine.EnsureRoot(ctx); err != nil {
		panic(err)
	}

	go beginPromHandler(cfg)
	go beginReadyzHandler(cfg)
	go engine.StartExpirer(ctx, 1*time.Minute)

	server := settlementapi.NewServer(cfg.ListenAddress, engine, store, logger)
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal(err.Error())
	}
}

func beginPromHandler(cfg matrix.Config) {
	if cfg.PromPort == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = http.ListenAndServe(cfg.PromPort, mux)
}

func beginReadyzHandler(cfg matrix.Config) {
	if cfg.HealthCheckPort == "" {
		return
	}
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Mock {
			w.WriteHeader(http.StatusOK)
			return
		}
		pg, err := postgres.GetConnection(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		defer pg.Close(r.Context())
		if err := pg.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	go http.ListenAndServe(cfg.HealthCheckPort, nil)
}
