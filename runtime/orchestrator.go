// Package runtime handles live connections and event propagation.
// It wires the delivery machinery without containing business rules.
package runtime

import (
	"chat-core/contract"
	"chat-core/domain/event"
	"chat-core/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"
)

type Config struct {
	FanoutShards    int
	BufferSize      int
	DeliveryTimeout time.Duration
	// MetricInterval enables capacity and health monitoring when positive.
	MetricInterval       time.Duration
	LowCapacityThreshold float64
}

// Orchestrator owns the registry and the sharded fan-out, and keeps the
// fan-out workers alive under its supervisor. Services only see it as an
// emitter, transports only as a registry.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   *Registry
	fanout     *workers.EventFanout
	config     Config
	started    bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry *Registry, config Config) *Orchestrator {
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		registry:   registry,
		fanout: workers.NewEventFanout(log, registry,
			config.FanoutShards, config.BufferSize, config.DeliveryTimeout),
		config: config,
	}
}

// Start hands the fan-out and monitoring workers to the supervisor and
// returns at once. Calling it again is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	supervised := o.fanout.Workers()
	if o.config.MetricInterval > 0 {
		supervised = append(supervised,
			workers.NewChannelCapacityWorker(o.log, o.fanout.Channels(),
				o.config.MetricInterval, o.config.LowCapacityThreshold),
			workers.NewHealthMonitoringWorker(o.log, o.registry, o.config.MetricInterval),
		)
	}
	o.supervisor.Add(supervised...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator", "workers", len(supervised))
	go o.supervisor.Run(ctx)
}

// Stop cancels every supervised worker. Queued events are dropped.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown", "online", o.registry.Online())
	o.supervisor.Stop()
}

func (o *Orchestrator) Emit(actorID string, kind event.Kind, payload any) {
	o.fanout.Emit(actorID, kind, payload)
}

func (o *Orchestrator) Register(actorID string, conn contract.Connection) {
	o.registry.Register(actorID, conn)
}

func (o *Orchestrator) Unregister(actorID string, conn contract.Connection) {
	o.registry.Unregister(actorID, conn)
}

func (o *Orchestrator) ConnectionsOf(actorID string) []contract.Connection {
	return o.registry.ConnectionsOf(actorID)
}
