// Package ledger is the append-only, ordered store of conversation turns.
// Messages are totally ordered per thread by (order, step); a message's
// status only moves forward and terminal messages are never rewritten.
package ledger

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"lingua/pkg/logger"
	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/threads"
	"lingua/pkg/utils"
)

// MaxTextLen bounds user-submitted message text.
const MaxTextLen = 8192

// Page is one page of a thread's ledger listing.
type Page struct {
	Messages []models.Message `json:"messages"`
	// NextCursor resumes the listing; empty on the last page.
	NextCursor string `json:"next_cursor,omitempty"`
}

// AppendUserMessage validates ownership, assigns the next turn order
// atomically, and appends the user's text as a terminal success message.
// User text is never partial.
func AppendUserMessage(threadID, userID, text string) (models.Message, error) {
	if _, err := threads.GetOwnedThread(threadID, userID); err != nil {
		return models.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" || len(text) > MaxTextLen {
		return models.Message{}, models.ErrValidationFailed
	}
	order, err := store.NextTurn(threadID)
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ID:     utils.GenID(),
		Thread: threadID,
		Role:   models.RoleUser,
		Order:  order,
		Step:   0,
		Text:   text,
		Status: models.StatusSuccess,
		TS:     time.Now().UTC().UnixNano(),
	}
	if err := store.SaveMessage(m); err != nil {
		return models.Message{}, err
	}
	logger.Log.Info("user_message_appended", zap.String("thread", threadID), zap.String("msg", m.ID), zap.Uint64("order", order))
	return m, nil
}

// BeginAssistantMessage opens a new assistant turn in streaming status.
// Called by the generation job, which owns the turn until finalization.
func BeginAssistantMessage(threadID string) (models.Message, error) {
	order, err := store.NextTurn(threadID)
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ID:     utils.GenID(),
		Thread: threadID,
		Role:   models.RoleAssistant,
		Order:  order,
		Step:   0,
		Status: models.StatusStreaming,
		TS:     time.Now().UTC().UnixNano(),
	}
	if err := store.SaveMessage(m); err != nil {
		return models.Message{}, err
	}
	logger.Log.Info("assistant_message_begun", zap.String("thread", threadID), zap.String("msg", m.ID), zap.Uint64("order", order))
	return m, nil
}

// AppendStep adds a message to an in-flight assistant turn, holding the
// parent's order and incrementing the step counter. Used for tool results
// and follow-up assistant replies within one generation.
func AppendStep(threadID string, parent models.Message, role models.Role, text string, status models.MessageStatus) (models.Message, error) {
	step, err := store.NextStep(threadID, parent.Order)
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ID:     utils.GenID(),
		Thread: threadID,
		Role:   role,
		Order:  parent.Order,
		Step:   step,
		Text:   text,
		Status: status,
		TS:     time.Now().UTC().UnixNano(),
	}
	if err := store.SaveMessage(m); err != nil {
		return models.Message{}, err
	}
	logger.Log.Debug("assistant_step_appended", zap.String("thread", threadID), zap.String("msg", m.ID), zap.Uint64("order", m.Order), zap.Uint64("step", step))
	return m, nil
}

// UpdateStreamingText replaces the partial text of a streaming message.
// No-op for terminal messages.
func UpdateStreamingText(threadID, msgID, text string) error {
	m, err := store.GetMessage(threadID, msgID)
	if err != nil {
		return err
	}
	if m.Status.Terminal() {
		return nil
	}
	m.Text = text
	return store.SaveMessage(m)
}

// FinalizeMessage transitions a message to success or failed. Idempotent:
// re-finalizing an already-terminal message is a no-op, guarding against
// duplicate completion signals from a job and the stale sweeper racing.
func FinalizeMessage(threadID, msgID, finalText string, status models.MessageStatus) error {
	if !status.Terminal() {
		return models.ErrValidationFailed
	}
	m, err := store.GetMessage(threadID, msgID)
	if err != nil {
		return err
	}
	if m.Status.Terminal() {
		logger.Log.Debug("finalize_noop_terminal", zap.String("msg", msgID), zap.String("status", string(m.Status)))
		return nil
	}
	if finalText != "" {
		m.Text = finalText
	}
	m.Status = status
	if err := store.SaveMessage(m); err != nil {
		return err
	}
	logger.Log.Info("message_finalized", zap.String("thread", threadID), zap.String("msg", msgID), zap.String("status", string(status)))
	return nil
}

// ListMessages returns one page of the thread's ledger in (order, step)
// order, gated on ownership.
func ListMessages(threadID, userID, cursor string, limit int) (Page, error) {
	if _, err := threads.GetOwnedThread(threadID, userID); err != nil {
		return Page{}, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	msgs, next, err := store.ListMessages(threadID, cursor, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{Messages: msgs, NextCursor: next}, nil
}

// History returns the full ledger of a thread without ownership gating;
// used by the generation job to build the model prompt.
func History(threadID string) ([]models.Message, error) {
	msgs, _, err := store.ListMessages(threadID, "", 0)
	return msgs, err
}

// GetMessage returns one message gated on thread ownership.
func GetMessage(threadID, userID, msgID string) (models.Message, error) {
	if _, err := threads.GetOwnedThread(threadID, userID); err != nil {
		return models.Message{}, err
	}
	m, err := store.GetMessage(threadID, msgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, models.ErrNotFoundOrForbidden
		}
		return models.Message{}, err
	}
	return m, nil
}
