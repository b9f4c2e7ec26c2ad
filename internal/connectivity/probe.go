package connectivity

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// HealthChecker is satisfied by remote gateways that expose a health
// endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ProbeConfig holds probe configuration.
type ProbeConfig struct {
	// Interval between health checks (default: 15s)
	Interval time.Duration

	// Timeout for one health check (default: 5s)
	Timeout time.Duration

	// Logger for state changes (default: stderr with [connectivity] prefix)
	Logger *log.Logger
}

// DefaultProbeConfig returns sensible defaults.
func DefaultProbeConfig() *ProbeConfig {
	return &ProbeConfig{
		Interval: 15 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Probe is an Oracle driven by periodic health checks. It starts offline
// and reports online after the first successful check.
type Probe struct {
	*hub

	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewProbe creates a probe for checker.
func NewProbe(checker HealthChecker, config *ProbeConfig) *Probe {
	if config == nil {
		config = DefaultProbeConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	return &Probe{
		hub:      newHub(false),
		checker:  checker,
		interval: config.Interval,
		timeout:  config.Timeout,
		logger:   config.Logger,
	}
}

// Check runs one health check and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.Health(ctx)
	online := err == nil
	if p.set(online) {
		if online {
			p.logger.Printf("Remote reachable, going online")
		} else {
			p.logger.Printf("Remote unreachable, going offline: %v", err)
		}
	}
	return online
}

// Start runs an immediate check and then polls in the background.
func (p *Probe) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return fmt.Errorf("probe already running")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.Check(p.ctx)

	p.wg.Add(1)
	go p.loop()
	return nil
}

// Stop stops polling and closes subscriber channels.
func (p *Probe) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.closeAll()
}

func (p *Probe) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Check(p.ctx)
		}
	}
}
