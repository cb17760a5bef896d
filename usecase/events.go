package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
	"github.com/zapdesk/zapdesk/pkg/tasks"
)

// EventEmitter fans integration events out to the broker and to webhook
// subscribers. Both legs run as fire-and-forget tasks so a slow or failing
// consumer never blocks the write path.
type EventEmitter struct {
	publisher  domainIntegration.IEventPublisher
	dispatcher domainIntegration.IDispatcher
	submitter  tasks.Submitter
}

func NewEventEmitter(publisher domainIntegration.IEventPublisher, dispatcher domainIntegration.IDispatcher, submitter tasks.Submitter) *EventEmitter {
	return &EventEmitter{
		publisher:  publisher,
		dispatcher: dispatcher,
		submitter:  submitter,
	}
}

func (e *EventEmitter) Emit(name string, instanceID uuid.UUID, payload map[string]any) {
	if e == nil {
		return
	}
	event := domainIntegration.Event{
		ID:         uuid.New(),
		Name:       name,
		InstanceID: instanceID,
		OccurredAt: time.Now(),
		Payload:    payload,
	}

	if e.publisher != nil {
		submitted := e.submitter.Submit(tasks.Task{
			Name: "broker:" + name,
			Key:  instanceID.String(),
			Run: func(ctx context.Context) error {
				return e.publisher.Publish(ctx, event)
			},
		})
		if !submitted {
			logrus.Warnf("[EVENTS] Broker publish for %s not submitted", name)
		}
	}

	if e.dispatcher != nil {
		submitted := e.submitter.Submit(tasks.Task{
			Name: "webhook:" + name,
			Key:  instanceID.String(),
			Run: func(ctx context.Context) error {
				return e.dispatcher.Forward(ctx, event)
			},
		})
		if !submitted {
			logrus.Warnf("[EVENTS] Webhook dispatch for %s not submitted", name)
		}
	}
}
