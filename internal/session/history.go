package session

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/store"
)

const maxTitleRunes = 60

// HistoryStore is the persistence collaborator used to append history
type HistoryStore interface {
	EnsureConversation(ctx context.Context, c *store.Conversation) error
	SaveMessage(ctx context.Context, msg *store.Message) error
}

// HistoryRecorder appends conversation history as a side effect of the
// event stream. It saves the prompt on launch and one assistant message per
// process run. Failures are logged and never reach the core.
type HistoryRecorder struct {
	store   HistoryStore
	timeout time.Duration

	mu    sync.Mutex
	turns map[string]*turnAccumulator
}

type turnAccumulator struct {
	content       strings.Builder
	thinking      strings.Builder
	errors        []string
	thinkingStart time.Time
	thinkingEnd   time.Time
}

// NewHistoryRecorder creates a recorder writing to s
func NewHistoryRecorder(s HistoryStore) *HistoryRecorder {
	return &HistoryRecorder{
		store:   s,
		timeout: 5 * time.Second,
		turns:   make(map[string]*turnAccumulator),
	}
}

// ConversationLaunched saves the user prompt and starts a new turn
func (h *HistoryRecorder) ConversationLaunched(req *LaunchRequest, _ SpawnSpec) {
	h.mu.Lock()
	h.turns[req.ConversationID] = &turnAccumulator{}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	conv := &store.Conversation{
		ID:          req.ConversationID,
		WorkspaceID: req.WorkspaceID,
		Title:       titleFrom(req.Prompt),
	}
	if err := h.store.EnsureConversation(ctx, conv); err != nil {
		logger.Error("Failed to record conversation %s: %v", req.ConversationID, err)
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           store.RoleUser,
		Content:        req.Prompt,
		Timestamp:      time.Now(),
	}
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		logger.Error("Failed to record prompt for conversation %s: %v", req.ConversationID, err)
	}
}

// Emit accumulates assistant output and persists it on stream-end
func (h *HistoryRecorder) Emit(ev *agent.Event) {
	if ev.ConversationID == "" {
		return
	}

	h.mu.Lock()
	turn, ok := h.turns[ev.ConversationID]
	if !ok {
		h.mu.Unlock()
		return
	}

	switch ev.Type {
	case agent.EventStreamDelta:
		turn.content.WriteString(ev.Text)
	case agent.EventThinkingDelta:
		now := time.Now()
		if turn.thinkingStart.IsZero() {
			turn.thinkingStart = now
		}
		turn.thinkingEnd = now
		turn.thinking.WriteString(ev.Text)
	case agent.EventStreamError:
		turn.errors = append(turn.errors, ev.Text)
	case agent.EventStreamEnd:
		delete(h.turns, ev.ConversationID)
		h.mu.Unlock()
		h.save(ev, turn)
		return
	}
	h.mu.Unlock()
}

func (h *HistoryRecorder) save(ev *agent.Event, turn *turnAccumulator) {
	content := turn.content.String()
	if content == "" && len(turn.errors) > 0 {
		content = "Error: " + strings.Join(turn.errors, "\n")
	}
	if content == "" && turn.thinking.Len() == 0 {
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: ev.ConversationID,
		Role:           store.RoleAssistant,
		Content:        content,
		Thinking:       turn.thinking.String(),
		Timestamp:      time.Now(),
	}
	if !turn.thinkingStart.IsZero() {
		d := turn.thinkingEnd.Sub(turn.thinkingStart).Milliseconds()
		msg.ThinkingDuration = &d
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		logger.Error("Failed to record reply for conversation %s: %v", ev.ConversationID, err)
	}
}

func titleFrom(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	return string([]rune(title)[:maxTitleRunes]) + "…"
}
