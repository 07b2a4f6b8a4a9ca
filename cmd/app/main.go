package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"OptSignal/internal/di"
	"OptSignal/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the config and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *checkOnly {
		fmt.Fprintf(os.Stdout, "config ok: %s\n", describe(cfg))
		return
	}

	log.Printf("optsignal starting: %s", describe(cfg))

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func describe(cfg *config.Config) string {
	return fmt.Sprintf("env=%s backend=%s symbols=%v stream=%t kafka=%t redis=%t predictor=%t",
		cfg.Environment,
		cfg.Backend.Type,
		cfg.Finnhub.Symbols,
		cfg.Finnhub.Stream,
		cfg.KafkaEnabled(),
		cfg.Redis.Enabled,
		cfg.Predictor.Enabled,
	)
}
