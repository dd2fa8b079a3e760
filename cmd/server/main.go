package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/api"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/audit"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/broker"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/chain"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/config"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/game"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/server"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/wager"
)

const (
	appName    = "TreasureHunt"
	appVersion = "1.0.0"
	appBanner  = `
==============================================================
  TreasureHunt Server
  Authoritative multiplayer island game with wagered matches
  Version: %s
==============================================================
`
)

var (
	gamePort    = flag.String("port", "", "Override GAME_PORT")
	logLevel    = flag.String("log", "info", "Log level (debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "Show version information")
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     true,
	})
	logrus.SetOutput(os.Stdout)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	printBanner()
	setLogLevel(*logLevel)

	cfg := config.LoadFromEnv()
	if *gamePort != "" {
		cfg.GamePort = *gamePort
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	wallet, err := broker.LoadWallet(cfg.PrivateKey)
	if err != nil {
		logrus.Fatalf("Failed to load server wallet: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"port":    cfg.GamePort,
		"wallet":  wallet.Address.Hex(),
		"asset":   cfg.Asset,
		"wager":   cfg.WagerAmount,
		"players": fmt.Sprintf("%d-%d", cfg.MinPlayers, cfg.MaxPlayers),
	}).Info("Starting treasure hunt server")

	// The chain endpoint is advisory; wagers settle through the broker.
	if cfg.RPCURL != "" {
		probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := chain.Probe(probeCtx, cfg.RPCURL, wallet.Address,
			common.HexToAddress(cfg.CustodyAddress),
			common.HexToAddress(cfg.AdjudicatorAddress))
		if err != nil {
			logrus.Warnf("Chain RPC probe failed: %v", err)
		}
		cancel()
	}

	journal, err := audit.Open(cfg.JournalPath)
	if err != nil {
		logrus.Fatalf("Failed to open audit journal: %v", err)
	}

	brokerClient, err := broker.New(broker.Config{
		URL:        cfg.BrokerWSURL,
		Wallet:     wallet,
		Asset:      cfg.Asset,
		Token:      cfg.TokenAddress,
		ChainID:    cfg.ChainID,
		Collateral: cfg.ChannelCollateral,
	})
	if err != nil {
		logrus.Fatalf("Failed to build broker client: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := brokerClient.Connect(connectCtx); err != nil {
		cancel()
		logrus.Fatalf("Broker session failed: %v", err)
	}
	cancel()

	ledger := wager.NewLedger(brokerClient, cfg.Asset, journal)
	rules := game.RulesFromConfig(cfg, wallet.Address.Hex())

	hub := server.NewHub()
	match := game.NewMatchMaker(rules, ledger, hub.Broadcast)
	status := api.NewHandler(match, hub, brokerClient)
	srv := server.New(cfg, hub, match, status)

	setupGracefulShutdown(srv, brokerClient)

	logrus.Info("🚀 Server starting...")
	if err := srv.Start(); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}

func printBanner() {
	fmt.Printf(appBanner, appVersion)
	fmt.Println()
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
		logrus.Warnf("Unknown log level '%s', defaulting to 'info'", level)
	}
}

func setupGracefulShutdown(srv *server.Server, brokerClient *broker.Client) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigChan
		logrus.Infof("Received signal: %v", sig)
		logrus.Info("Initiating graceful shutdown...")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		srv.Stop(ctx)
		cancel()

		brokerClient.Close()

		logrus.Info("Shutdown complete. Goodbye! 👋")
		os.Exit(0)
	}()
}
