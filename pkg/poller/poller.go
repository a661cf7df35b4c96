// Package poller watches for module instances that reached a terminal
// status and fires their completion callbacks exactly once: unblocking
// dependents and recording that the transition was handled.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/planner"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// Poller scans for completed instances and dispatches their callbacks to a
// worker pool.
type Poller struct {
	cfg       config.PollerConfig
	instances *repo.InstanceRepo
	resolver  *planner.DependencyResolver

	queue chan string

	mu       sync.Mutex
	inFlight map[string]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *slog.Logger
}

// New creates a Poller.
func New(cfg config.PollerConfig, instances *repo.InstanceRepo, resolver *planner.DependencyResolver) *Poller {
	return &Poller{
		cfg:       cfg,
		instances: instances,
		resolver:  resolver,
		queue:     make(chan string, cfg.QueueSize),
		inFlight:  map[string]struct{}{},
		stopCh:    make(chan struct{}),
		logger:    slog.Default().With("component", "instance_poller"),
	}
}

// Start launches the scan loop and workers.
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.scanLoop()
	for i := 0; i < p.cfg.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	p.logger.Info("Instance poller started",
		"workers", p.cfg.MaxWorkers, "poll_interval", p.cfg.PollInterval)
}

// Stop halts scanning and waits for workers to drain.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		p.logger.Info("Instance poller stopped")
	})
}

func (p *Poller) scanLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.scanOnce()
		}
	}
}

func (p *Poller) scanOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PollInterval)
	defer cancel()

	candidates, err := p.instances.PollCandidates(ctx, p.cfg.BatchLimit)
	if err != nil {
		p.logger.Error("Polling candidates failed", "error", err)
		return
	}
	for _, inst := range candidates {
		if !p.markInFlight(inst.InstanceID) {
			continue
		}
		select {
		case p.queue <- inst.InstanceID:
		default:
			p.clearInFlight(inst.InstanceID)
			return
		}
	}
}

func (p *Poller) workerLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case instanceID := <-p.queue:
			p.process(instanceID)
			p.clearInFlight(instanceID)
		}
	}
}

// process handles one candidate: re-read the row, fire dependency
// resolution, then record the callback. Resolution runs before the mark so
// a transient failure leaves the candidate retryable on the next scan;
// Unblock is idempotent, so a rare double resolution is harmless.
func (p *Poller) process(instanceID string) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Callback panicked", "instance_id", instanceID, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inst, err := p.instances.Get(ctx, instanceID)
	if err != nil {
		p.logger.Warn("Candidate vanished", "instance_id", instanceID, "error", err)
		return
	}
	if !inst.Status.IsTerminal() || inst.CallbackProcessed {
		return // moved on since the scan
	}

	activated, err := p.resolver.HandleCompletion(ctx, inst.AgentID, inst.InstanceID, inst.Status)
	if err != nil {
		p.logger.Error("Dependency resolution failed", "instance_id", instanceID, "error", err)
		return
	}

	claimed, err := p.instances.MarkCallbackProcessed(ctx, inst.InstanceID, inst.Status)
	if err != nil {
		p.logger.Error("Recording callback failed", "instance_id", instanceID, "error", err)
		return
	}
	if !claimed {
		return // another worker already settled this transition
	}
	if err := p.instances.MarkPolled(ctx, inst.InstanceID, inst.Status); err != nil {
		p.logger.Warn("Recording polled status failed", "instance_id", instanceID, "error", err)
	}
	if len(activated) > 0 {
		p.logger.Info("Completion callback fired",
			"instance_id", inst.InstanceID, "status", inst.Status, "activated", activated)
	}
}

// Status reports pool occupancy for the health endpoint.
func (p *Poller) Status() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"workers":   p.cfg.MaxWorkers,
		"queued":    len(p.queue),
		"in_flight": len(p.inFlight),
	}
}

func (p *Poller) markInFlight(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[id]; ok {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

func (p *Poller) clearInFlight(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
}
