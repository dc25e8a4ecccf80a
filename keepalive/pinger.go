package keepalive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roylee0704/gron"
)

// Pinger requests a URL at a fixed interval to keep free hosting
// instances awake. Failures are logged and left to the next tick.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	cron     *gron.Cron
}

func NewPinger(url string, interval, timeout time.Duration) *Pinger {
	return &Pinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *Pinger) Start() {
	p.cron = gron.New()
	p.cron.AddFunc(gron.Every(p.interval), func() {
		if err := p.Ping(context.Background()); err != nil {
			slog.Debug("keepalive: Ping failed", "error", err, "url", p.url)
			return
		}
		slog.Debug("keepalive: Ping succeeded", "url", p.url)
	})
	p.cron.Start()

	slog.Info("keepalive: Pinger started", "url", p.url, "interval", p.interval.String())
}

func (p *Pinger) Stop() {
	if p.cron != nil {
		p.cron.Stop()
	}
}

// Ping performs one GET and discards the body
func (p *Pinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("ping returned status %d", resp.StatusCode)
	}
	return nil
}
