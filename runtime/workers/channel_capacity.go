package workers

import (
	"context"
	"log/slog"
	"time"
)

// NamedChannel exposes the fill level of a buffered channel without
// giving access to its values.
type NamedChannel struct {
	Name     string
	Length   func() int
	Capacity int
}

// ChannelCapacityWorker periodically samples buffered channels and warns
// when one of them fills up. Reading len and cap of a channel never blocks.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
	threshold      float64
}

// NewChannelCapacityWorker warns once a channel is filled at threshold or
// more, threshold being a ratio between 0 and 1.
func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	metricInterval time.Duration, threshold float64) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		metricInterval: metricInterval,
		threshold:      threshold,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

// sample returns the names of the channels above threshold.
func (w *ChannelCapacityWorker) sample() []string {
	var saturated []string
	for _, nc := range w.channels {
		if nc.Capacity == 0 {
			continue
		}
		length := nc.Length()
		fill := float64(length) / float64(nc.Capacity)
		if fill >= w.threshold {
			saturated = append(saturated, nc.Name)
			w.log.Warn("Channel almost full", "name", nc.Name, "length", length, "capacity", nc.Capacity)
			continue
		}
		w.log.Debug("Channel capacity", "name", nc.Name, "length", length, "capacity", nc.Capacity)
	}
	return saturated
}
