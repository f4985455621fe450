package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/config"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/telemetry"
)

// kitchen-board is a headless kitchen display. It polls the pos-api ticket
// feed and logs the board whenever it changes.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		telemetry.InitLogger("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.LogLevel).With("service", "kitchen-board")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName: "kitchen-board",
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		logger.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	svc := kitchen.NewService(kitchen.NewHTTPFeed(cfg.FeedURL, nil), logger)
	poller := kitchen.NewPoller(svc, kitchen.NewBoard(cfg.DefaultStoreID), cfg.PollInterval, logger)
	poller.Start(ctx)
	defer poller.Stop()

	logger.Info("kitchen board polling", "feed", cfg.FeedURL, "store_id", cfg.DefaultStoreID, "interval", cfg.PollInterval)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	var last map[kitchen.Status]int
	for {
		select {
		case <-ctx.Done():
			logger.Info("kitchen board stopped")
			return
		case <-ticker.C:
			v := poller.Board().View(kitchen.Filter{})
			if sameCounts(last, v.Counts) {
				continue
			}
			last = v.Counts
			now := time.Now()
			late := 0
			for _, t := range append(append(v.New, v.InProgress...), v.Ready...) {
				if t.Urgency(now) == kitchen.UrgencyLate {
					late++
				}
			}
			logger.Info("board",
				"new", v.Counts[kitchen.StatusNew],
				"in_progress", v.Counts[kitchen.StatusInProgress],
				"ready", v.Counts[kitchen.StatusReady],
				"late", late,
			)
		}
	}
}

func sameCounts(a, b map[kitchen.Status]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
