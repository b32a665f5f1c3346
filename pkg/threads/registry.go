// Package threads owns thread identity and ownership checks. Every other
// component resolves thread-scoped access through GetOwnedThread so that
// a missing thread and a thread owned by someone else are indistinguishable
// to the caller.
package threads

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"lingua/pkg/logger"
	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/utils"
)

// CreateThread creates a thread owned by userID.
func CreateThread(userID, title string) (models.Thread, error) {
	if userID == "" {
		return models.Thread{}, models.ErrNotAuthenticated
	}
	now := time.Now().UTC().UnixNano()
	t := models.Thread{
		ID:        utils.GenThreadID(),
		Title:     title,
		Owner:     userID,
		CreatedTS: now,
		UpdatedTS: now,
	}
	if err := store.SaveThread(t); err != nil {
		return models.Thread{}, err
	}
	logger.Log.Info("thread_created", zap.String("thread", t.ID), zap.String("owner", userID))
	return t, nil
}

// GetOwnedThread returns the thread only when it exists and is owned by
// userID. Missing and not-owned both yield ErrNotFoundOrForbidden.
func GetOwnedThread(threadID, userID string) (models.Thread, error) {
	if userID == "" {
		return models.Thread{}, models.ErrNotAuthenticated
	}
	t, err := store.GetThread(threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Thread{}, models.ErrNotFoundOrForbidden
		}
		return models.Thread{}, err
	}
	if t.Owner != userID || t.Deleted {
		return models.Thread{}, models.ErrNotFoundOrForbidden
	}
	return t, nil
}

// ListOwnedThreads returns all live threads owned by userID.
func ListOwnedThreads(userID string) ([]models.Thread, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}
	all, err := store.ListThreads()
	if err != nil {
		return nil, err
	}
	var out []models.Thread
	for _, t := range all {
		if t.Owner == userID && !t.Deleted {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateTitle sets the thread title/summary; only metadata is mutable.
func UpdateTitle(threadID, userID, title, summary string) (models.Thread, error) {
	t, err := GetOwnedThread(threadID, userID)
	if err != nil {
		return models.Thread{}, err
	}
	if title != "" {
		t.Title = title
	}
	if summary != "" {
		t.Summary = summary
	}
	t.UpdatedTS = time.Now().UTC().UnixNano()
	if err := store.SaveThread(t); err != nil {
		return models.Thread{}, err
	}
	return t, nil
}
