package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Source identifies which tool sent an event.
type Source string

const (
	SourceClaudeCode Source = "claude-code"
	SourceCodex      Source = "codex"
	SourceGeneric    Source = "generic"
)

// Kind is what the orchestrator should do with an event.
type Kind int

const (
	// KindIgnored events are accepted but produce no speech.
	KindIgnored Kind = iota
	// KindNotification events speak a prompt message directly.
	KindNotification
	// KindCompletion events summarize the finished turn.
	KindCompletion
	// KindGeneric events speak their text as is.
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindNotification:
		return "notification"
	case KindCompletion:
		return "completion"
	case KindGeneric:
		return "generic"
	default:
		return "ignored"
	}
}

// Event is a normalized hook event.
type Event struct {
	Source           Source
	Kind             Kind
	Name             string // hook_event_name, or the Codex payload type
	SessionID        string
	TranscriptPath   string
	CWD              string
	StopHookActive   bool
	Message          string
	NotificationType string

	// InlineContext is completion text carried by the event itself, so no
	// transcript needs to be read.
	InlineContext string

	Raw any
}

// ErrEmptyPayload is returned for a generic payload with nothing to speak.
var ErrEmptyPayload = errors.New("payload has no text, message or content")

// Parse reads one event and detects its format.
func Parse(r io.Reader) (*Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if raw, ok := probe["type"]; ok {
		var typ string
		if json.Unmarshal(raw, &typ) == nil && typ == CodexTurnComplete {
			return parseCodexEvent(data)
		}
	}
	if _, ok := probe["hook_event_name"]; ok {
		return parseClaudeCodeEvent(data)
	}
	return parseGenericEvent(data)
}

func parseCodexEvent(data []byte) (*Event, error) {
	var event CodexNotifyEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse Codex event: %w", err)
	}
	return &Event{
		Source:        SourceCodex,
		Kind:          KindCompletion,
		Name:          event.Type,
		SessionID:     event.ThreadID,
		CWD:           event.CWD,
		InlineContext: event.LastAssistantMessage,
		Raw:           &event,
	}, nil
}

func parseClaudeCodeEvent(data []byte) (*Event, error) {
	var event ClaudeCodeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse Claude Code event: %w", err)
	}

	kind := KindIgnored
	switch event.HookEventName {
	case EventNotification:
		kind = KindNotification
	case EventStop, EventSubagentStop:
		kind = KindCompletion
	}

	return &Event{
		Source:           SourceClaudeCode,
		Kind:             kind,
		Name:             event.HookEventName,
		SessionID:        event.SessionID,
		TranscriptPath:   event.TranscriptPath,
		CWD:              event.CWD,
		StopHookActive:   event.StopHookActive,
		Message:          event.Message,
		NotificationType: event.NotificationType,
		Raw:              &event,
	}, nil
}

func parseGenericEvent(data []byte) (*Event, error) {
	var event GenericEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	text := strings.TrimSpace(event.text())
	if text == "" {
		return nil, ErrEmptyPayload
	}
	return &Event{
		Source:  SourceGeneric,
		Kind:    KindGeneric,
		Message: text,
		Raw:     &event,
	}, nil
}

// IsCodex reports whether the event came from Codex.
func (e *Event) IsCodex() bool {
	return e.Source == SourceCodex
}

// IsClaudeCode reports whether the event came from Claude Code.
func (e *Event) IsClaudeCode() bool {
	return e.Source == SourceClaudeCode
}

// CodexEvent returns the underlying Codex payload.
func (e *Event) CodexEvent() (*CodexNotifyEvent, bool) {
	event, ok := e.Raw.(*CodexNotifyEvent)
	return event, ok
}

// ClaudeCodeEvent returns the underlying Claude Code payload.
func (e *Event) ClaudeCodeEvent() (*ClaudeCodeEvent, bool) {
	event, ok := e.Raw.(*ClaudeCodeEvent)
	return event, ok
}
