package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/actiond/internal/events"
)

// registerSSERoutes registers the action lifecycle event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of action state changes, crashes, launch failures, rejections and payload reloads",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"action-state-changed": events.ActionStateChangedEvent{},
		"action-crashed":       events.ActionCrashedEvent{},
		"action-launch-failed": events.ActionLaunchFailedEvent{},
		"failure-unattributed": events.FailureUnattributedEvent{},
		"rejection":            events.RejectionEvent{},
		"payload-reloaded":     events.PayloadReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ActionStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ActionCrashedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ActionLaunchFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FailureUnattributedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RejectionEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PayloadReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
