package genjob

import (
	"fmt"

	"go.uber.org/zap"

	"lingua/pkg/approval"
	"lingua/pkg/llm"
	"lingua/pkg/logger"
	"lingua/pkg/store"
	"lingua/pkg/streamer"
	"lingua/pkg/validation"
)

// FlashcardTool is the name of the gated action the tutor may request.
const FlashcardTool = "create_flashcard"

// flashcardAck is the fixed result string handed back to the model so
// generation completes without waiting on the human decision.
const flashcardAck = "Flashcard suggestion recorded; the learner will be asked to approve it before it is added to their deck."

// toolDefs declares the closed set of tools offered to the model.
func toolDefs() []llm.ToolDef {
	return []llm.ToolDef{{
		Name:        FlashcardTool,
		Description: "Suggest saving a study flashcard for the learner. The card is only created after the learner explicitly approves it.",
		Params: map[string]string{
			"text": "The front of the card: the word or sentence being studied.",
			"note": "The back of the card: translation, usage note or mnemonic.",
		},
	}}
}

// intercept handles one gated tool invocation inside a generation job.
// Instead of executing the action it records a pending approval (at most
// once per invocation id, even when the model retries) and returns a
// provisional textual result so the model can continue.
func intercept(threadID, messageID, owner string, call llm.ToolCall, st *streamer.Streamer) llm.ToolResult {
	res := llm.ToolResult{ID: call.ID, Name: call.Name}

	if call.Name != FlashcardTool {
		res.Output = fmt.Sprintf("unknown tool %q", call.Name)
		return res
	}

	args, err := validation.FlashcardArgs(call.Args)
	if err != nil {
		// malformed arguments short-circuit: no approval is created
		logger.Log.Warn("tool_args_invalid", zap.String("thread", threadID), zap.String("invocation", call.ID), zap.Error(err))
		res.Output = fmt.Sprintf("invalid flashcard arguments: %v", err)
		return res
	}

	if existing, ok, err := store.GetApprovalByInvocation(threadID, call.ID); err != nil {
		logger.Log.Error("approval_dedup_lookup_failed", zap.String("invocation", call.ID), zap.Error(err))
		res.Output = "flashcard suggestion could not be recorded"
		return res
	} else if ok {
		logger.Log.Debug("tool_invocation_deduplicated", zap.String("invocation", call.ID), zap.String("approval", existing.ID))
		res.Output = flashcardAck
		return res
	}

	a, err := approval.Create(threadID, messageID, call.ID, owner, FlashcardTool, args)
	if err != nil {
		logger.Log.Error("approval_create_failed", zap.String("invocation", call.ID), zap.Error(err))
		res.Output = "flashcard suggestion could not be recorded"
		return res
	}
	st.Approval(threadID, messageID, a.ID)
	res.Output = flashcardAck
	return res
}
