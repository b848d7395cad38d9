//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself, the supervisor restarts it
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Connection is one live transport session of an actor.
type Connection interface {
	EventSink
	ID() string
}

type IRegistry interface {
	Register(actorID string, conn Connection)
	Unregister(actorID string, conn Connection)
	ConnectionsOf(actorID string) []Connection
}

// IEmitter never blocks and never fails: delivery is best effort.
type IEmitter interface {
	Emit(actorID string, kind event.Kind, payload any)
}

type IAttachmentStorage interface {
	Save(ctx context.Context, upload domain.Upload) (domain.Attachment, error)
	Remove(ctx context.Context, attachment domain.Attachment) error
}
