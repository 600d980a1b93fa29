// Package hook parses the event payloads that AI coding assistants pipe to
// ccvoice on stdin.
// For the Claude Code payloads, see:
// https://docs.anthropic.com/en/docs/claude-code/hooks
package hook

// Claude Code hook event names handled by ccvoice.
const (
	EventNotification = "Notification"
	EventStop         = "Stop"
	EventSubagentStop = "SubagentStop"
)

// CodexTurnComplete is the Codex notify payload type for a finished turn.
const CodexTurnComplete = "agent-turn-complete"

// ClaudeCodeEvent is the payload of a Claude Code hook.
type ClaudeCodeEvent struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd,omitempty"`
	PermissionMode string `json:"permission_mode,omitempty"`
	HookEventName  string `json:"hook_event_name"`
	StopHookActive bool   `json:"stop_hook_active,omitempty"`

	// Notification only.
	Message          string `json:"message,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`
}

// CodexNotifyEvent is the payload Codex passes to its notify program.
type CodexNotifyEvent struct {
	Type                 string   `json:"type"`
	ThreadID             string   `json:"thread-id"`
	TurnID               any      `json:"turn-id,omitempty"`
	CWD                  string   `json:"cwd,omitempty"`
	InputMessages        []string `json:"input-messages,omitempty"`
	LastAssistantMessage string   `json:"last-assistant-message,omitempty"`
}

// GenericEvent is any other JSON object carrying text to speak.
type GenericEvent struct {
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

// text returns the first non-empty of text, message and content.
func (g *GenericEvent) text() string {
	for _, s := range []string{g.Text, g.Message, g.Content} {
		if s != "" {
			return s
		}
	}
	return ""
}
