package workers

import (
	"chat-core/contract"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Deliver_To_Every_Device(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	phone := mocks.NewMockConnection(ctrl)
	laptop := mocks.NewMockConnection(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 1, 10, time.Second)

	intent := event.Intent{ActorID: "bob", Event: event.Event{Kind: event.MessageReceived, Payload: "hi"}}

	// Given bob is connected from two devices
	mockRegistry.EXPECT().ConnectionsOf("bob").Return([]contract.Connection{phone, laptop}).Times(1)
	// Then both receive the event
	phone.EXPECT().Consume(gomock.Any(), intent.Event).Return(nil).Times(1)
	laptop.EXPECT().Consume(gomock.Any(), intent.Event).Return(nil).Times(1)

	// When the event is delivered
	fanout.Deliver(context.Background(), intent)
}

func TestEventFanout_Failing_Connection_Does_Not_Stop_Others(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	broken := mocks.NewMockConnection(ctrl)
	healthy := mocks.NewMockConnection(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 1, 10, time.Second)

	mockRegistry.EXPECT().ConnectionsOf("bob").Return([]contract.Connection{broken, healthy}).Times(1)
	// Given the first connection is closed
	broken.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrConnectionClosed).Times(1)
	broken.EXPECT().ID().Return("broken").AnyTimes()
	// Then the second one still receives the event, exactly once
	healthy.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	fanout.Deliver(context.Background(), event.Intent{ActorID: "bob", Event: event.Event{Kind: event.LeaveChat}})
}

func TestEventFanout_Slow_Connection_Times_Out(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slow := mocks.NewMockConnection(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 1, 10, 20*time.Millisecond)

	mockRegistry.EXPECT().ConnectionsOf("bob").Return([]contract.Connection{slow}).Times(1)
	slow.EXPECT().ID().Return("slow").AnyTimes()
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.Event) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			return ctx.Err()
		}).Times(1)

	start := time.Now()
	fanout.Deliver(context.Background(), event.Intent{ActorID: "bob"})

	req.Less(time.Since(start), time.Second)
}

func TestEventFanout_Emit_Offline_Actor_Is_A_Noop(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 2, 10, time.Second)

	delivered := make(chan struct{})
	// Given nobody is connected
	mockRegistry.EXPECT().ConnectionsOf("ghost").DoAndReturn(func(string) []contract.Connection {
		close(delivered)
		return nil
	}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, w := range fanout.Workers() {
		go func(w contract.Worker) { _ = w.Run(ctx) }(w)
	}

	// When an event is emitted, the call returns without error or blocking
	fanout.Emit("ghost", event.NewChat, nil)

	select {
	case <-delivered:
	case <-time.After(time.Second):
		req.Fail("Intent was never drained")
	}
}

func TestEventFanout_Emit_Full_Buffer_Drops(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	fanout := NewEventFanout(log, mocks.NewMockIRegistry(ctrl), 1, 1, time.Second)

	// Given no worker drains the shard
	done := make(chan struct{})
	go func() {
		fanout.Emit("bob", event.NewChat, nil)
		fanout.Emit("bob", event.NewChat, nil)
		close(done)
	}()

	// Then the second emit returns anyway
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Emit blocked on a full buffer")
	}
	req.Len(fanout.shards[0], 1)
}

func TestEventFanout_Same_Actor_Same_Shard(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	fanout := NewEventFanout(log, mocks.NewMockIRegistry(ctrl), 8, 1, time.Second)

	req.Equal(fanout.shardOf("alice"), fanout.shardOf("alice"))
	req.Len(fanout.Workers(), 8)
}

func TestEventFanout_Shard_Stops_On_Cancel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	fanout := NewEventFanout(log, mocks.NewMockIRegistry(ctrl), 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.NoError(fanout.Workers()[0].Run(ctx))
}
