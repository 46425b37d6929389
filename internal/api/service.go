package api

import (
	"context"
	"fmt"

	"parish/internal/events"
	"parish/internal/progress"
	"parish/internal/registry"
	"parish/internal/runstate"
	"parish/internal/services"
	"parish/internal/workflow"
)

// EventService exposes event, state, and progress operations returning API
// DTOs. It is shared by the daemon's HTTP handlers and the local CLI paths.
type EventService struct {
	events  *events.Manager
	store   *runstate.Store
	tracker *progress.Tracker
	orch    *workflow.Orchestrator
}

// NewEventService constructs an EventService around the provided collaborators.
// The orchestrator may be nil for read-only consumers.
func NewEventService(
	eventManager *events.Manager,
	store *runstate.Store,
	tracker *progress.Tracker,
	orch *workflow.Orchestrator,
) *EventService {
	return &EventService{
		events:  eventManager,
		store:   store,
		tracker: tracker,
		orch:    orch,
	}
}

// List returns summaries for all events in chronological id order.
func (s *EventService) List(ctx context.Context) ([]EventSummary, error) {
	ids, err := s.events.List()
	if err != nil {
		return nil, err
	}
	summaries := make([]EventSummary, 0, len(ids))
	for _, id := range ids {
		event, err := s.events.Load(id)
		if err != nil {
			continue
		}
		state, err := s.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, EventSummary{
			ID:            event.ID,
			Title:         event.Title,
			Speaker:       event.Speaker,
			Date:          event.Date,
			OverallStatus: string(state.OverallStatus),
			Running:       s.running(id),
		})
	}
	return summaries, nil
}

// Describe returns the full view of one event with its state and progress.
func (s *EventService) Describe(ctx context.Context, eventID string) (*EventDetail, error) {
	event, err := s.events.Load(eventID)
	if err != nil {
		return nil, err
	}
	state, err := s.store.Load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &EventDetail{
		Event:    FromEvent(event),
		State:    FromRunState(state),
		Progress: s.progressView(event, state),
	}, nil
}

// Create builds a new event from the request.
func (s *EventService) Create(req CreateEventRequest) (EventView, error) {
	if req.Modules != nil {
		for name := range req.Modules {
			if !registry.Known(name) {
				return EventView{}, services.Wrap(services.ErrValidation, "", "create event",
					fmt.Sprintf("unknown module %q", name), nil)
			}
		}
	}
	event, err := s.events.Create(events.CreateRequest{
		Title:     req.Title,
		Speaker:   req.Speaker,
		Series:    req.Series,
		Scripture: req.Scripture,
		Date:      req.Date,
		Time:      req.Time,
		Language:  req.Language,
		Modules:   req.Modules,
	})
	if err != nil {
		return EventView{}, err
	}
	return FromEvent(event), nil
}

// AttachVideo records a source video on the event.
func (s *EventService) AttachVideo(eventID, path string) (EventView, error) {
	event, err := s.events.AttachVideo(eventID, path)
	if err != nil {
		return EventView{}, err
	}
	return FromEvent(event), nil
}

// SetModule toggles a known module on the event document.
func (s *EventService) SetModule(eventID, module string, enabled bool) (EventView, error) {
	if !registry.Known(module) {
		return EventView{}, services.Wrap(services.ErrValidation, "", "set module",
			fmt.Sprintf("unknown module %q", module), nil)
	}
	event, err := s.events.SetModule(eventID, module, enabled)
	if err != nil {
		return EventView{}, err
	}
	return FromEvent(event), nil
}

// Progress returns the live progress for an event, synthesized from durable
// state when no run has been tracked since daemon start.
func (s *EventService) Progress(ctx context.Context, eventID string) (ProgressView, error) {
	event, err := s.events.Load(eventID)
	if err != nil {
		return ProgressView{}, err
	}
	state, err := s.store.Load(ctx, eventID)
	if err != nil {
		return ProgressView{}, err
	}
	return s.progressView(event, state), nil
}

// State returns the persisted run state for an event.
func (s *EventService) State(ctx context.Context, eventID string) (RunStateView, error) {
	if _, err := s.events.Load(eventID); err != nil {
		return RunStateView{}, err
	}
	state, err := s.store.Load(ctx, eventID)
	if err != nil {
		return RunStateView{}, err
	}
	return FromRunState(state), nil
}

func (s *EventService) progressView(event *events.Event, state *runstate.RunState) ProgressView {
	if s.tracker != nil {
		if rec, ok := s.tracker.Get(event.ID); ok {
			return FromProgress(rec)
		}
	}
	return SynthesizeProgress(event, state)
}

func (s *EventService) running(eventID string) bool {
	return s.orch != nil && s.orch.Running(eventID)
}
