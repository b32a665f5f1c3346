// Package approval implements the tool-call approval state machine.
// Approvals are created pending by the generation job's interceptor and
// resolved exactly once by an explicit user decision; they are never
// deleted and serve as an audit trail.
package approval

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"lingua/pkg/logger"
	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/telemetry"
	"lingua/pkg/utils"
)

// resolveMu linearizes resolution per process: exactly one winning
// transition per approval id even under double-click retries.
var resolveMu sync.Mutex

// saveFlashcard is swappable in tests to force side-effect failures.
var saveFlashcard = store.SaveFlashcard

// Create records a new pending approval for a gated tool invocation.
// Callers must have already deduplicated on invocation id.
func Create(threadID, messageID, invocationID, owner, action string, args models.FlashcardArgs) (models.ToolCallApproval, error) {
	a := models.ToolCallApproval{
		ID:         utils.GenApprovalID(),
		Thread:     threadID,
		Message:    messageID,
		Invocation: invocationID,
		Owner:      owner,
		Action:     action,
		Args:       args,
		Status:     models.ApprovalPending,
		CreatedTS:  time.Now().UTC().UnixNano(),
	}
	if err := store.SaveApproval(a); err != nil {
		return models.ToolCallApproval{}, err
	}
	logger.Log.Info("approval_created",
		zap.String("approval", a.ID),
		zap.String("thread", threadID),
		zap.String("message", messageID),
		zap.String("invocation", invocationID))
	return a, nil
}

func loadOwned(approvalID, userID string) (models.ToolCallApproval, error) {
	if userID == "" {
		return models.ToolCallApproval{}, models.ErrNotAuthenticated
	}
	a, err := store.GetApproval(approvalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.ToolCallApproval{}, models.ErrNotFoundOrForbidden
		}
		return models.ToolCallApproval{}, err
	}
	if a.Owner != userID {
		return models.ToolCallApproval{}, models.ErrNotFoundOrForbidden
	}
	return a, nil
}

// Approve performs the gated action and flips the approval to approved.
// The status becomes approved only after the side effect has durably
// succeeded; if flashcard creation fails the approval stays pending and
// the error is surfaced to the caller.
func Approve(approvalID, userID string) (models.ToolCallApproval, error) {
	resolveMu.Lock()
	defer resolveMu.Unlock()

	a, err := loadOwned(approvalID, userID)
	if err != nil {
		return models.ToolCallApproval{}, err
	}
	if a.Status != models.ApprovalPending {
		return models.ToolCallApproval{}, models.ErrAlreadyResolved
	}

	card := models.Flashcard{
		ID:        utils.GenFlashcardID(),
		Owner:     a.Owner,
		Thread:    a.Thread,
		Text:      a.Args.Text,
		Note:      a.Args.Note,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	if err := saveFlashcard(card); err != nil {
		logger.Log.Error("approval_side_effect_failed", zap.String("approval", a.ID), zap.Error(err))
		return models.ToolCallApproval{}, err
	}

	a.Status = models.ApprovalApproved
	a.FlashcardID = card.ID
	a.ResolvedTS = time.Now().UTC().UnixNano()
	if err := store.SaveApproval(a); err != nil {
		return models.ToolCallApproval{}, err
	}
	telemetry.ApprovalResolutions.WithLabelValues("approved").Inc()
	logger.Log.Info("approval_approved", zap.String("approval", a.ID), zap.String("flashcard", card.ID))
	return a, nil
}

// Reject flips a pending approval to rejected; no side effect is
// performed and the gated action leaves no trace.
func Reject(approvalID, userID string) (models.ToolCallApproval, error) {
	resolveMu.Lock()
	defer resolveMu.Unlock()

	a, err := loadOwned(approvalID, userID)
	if err != nil {
		return models.ToolCallApproval{}, err
	}
	if a.Status != models.ApprovalPending {
		return models.ToolCallApproval{}, models.ErrAlreadyResolved
	}
	a.Status = models.ApprovalRejected
	a.ResolvedTS = time.Now().UTC().UnixNano()
	if err := store.SaveApproval(a); err != nil {
		return models.ToolCallApproval{}, err
	}
	telemetry.ApprovalResolutions.WithLabelValues("rejected").Inc()
	logger.Log.Info("approval_rejected", zap.String("approval", a.ID))
	return a, nil
}

// ListForMessage returns approvals under a message, gated on ownership of
// the containing thread by the caller having been checked upstream.
func ListForMessage(messageID, userID string) ([]models.ToolCallApproval, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}
	all, err := store.ListApprovalsForMessage(messageID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ToolCallApproval, 0, len(all))
	for _, a := range all {
		if a.Owner == userID {
			out = append(out, a)
		}
	}
	return out, nil
}
