package kitchen

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultPollInterval = 3 * time.Second

// Poller refreshes one board from the feed on a fixed interval.
type Poller struct {
	svc      *Service
	board    *Board
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(svc *Service, board *Board, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{svc: svc, board: board, interval: interval, log: log}
}

func (p *Poller) Board() *Board { return p.board }

// RefreshOnce runs a single fetch and merge.
func (p *Poller) RefreshOnce(ctx context.Context) error {
	_, err := p.svc.Refresh(ctx, p.board)
	return err
}

// Start refreshes immediately and then on every tick until Stop is called or
// ctx is cancelled. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.tick(ctx)
		for {
			select {
			case <-ticker.C:
				p.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight refresh to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
		p.log.WarnContext(ctx, "ticket poll failed", "store_id", p.board.StoreID(), "error", err)
	}
}
