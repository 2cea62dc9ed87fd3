package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/dnldd/tactic/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tacticCfg := service.TacticConfig{
		Markets:          cfg.Markets,
		FMPAPIKey:        cfg.FMPAPIKey,
		DatabaseEndpoint: cfg.DatabaseEndpoint,
		DatabaseUser:     cfg.DatabaseUser,
		DatabasePass:     cfg.DatabasePass,
		InitialCapital:   cfg.InitialCapital,
		RiskPerTrade:     cfg.RiskPerTrade,
		MaxOpenPositions: cfg.MaxOpenPositions,
		StopLossPercent:  cfg.StopLossPercent,
		TakeProfitRatio:  cfg.TakeProfitRatio,
		MinConfidence:    cfg.MinConfidence,
		MinRiskReward:    cfg.MinRiskReward,
		MaxPositionSize:  cfg.MaxPositionSize,
		KellyScale:       cfg.KellyScale,
		PollInterval:     cfg.PollInterval,
		Cancel:           cancel,
	}
	tactic, err := service.NewTactic(ctx, &tacticCfg)
	if err != nil {
		log.Printf("creating tactic service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	tactic.Run(ctx)
}
