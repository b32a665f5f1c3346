// Package artifacts is a cache-aside index of derived content keyed by the
// source text and language: pronunciation audio URLs and saved
// translations. Entries are immutable once written.
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"lingua/pkg/logger"
	"lingua/pkg/models"
	"lingua/pkg/store"
)

// Kind names an artifact namespace.
type Kind string

const (
	Audio       Kind = "audio"
	Translation Kind = "translation"
)

const maxValueLen = 4096

// Entry is one cached artifact.
type Entry struct {
	Kind      Kind   `json:"kind"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	Value     string `json:"value"`
	CreatedTS int64  `json:"created_ts"`
}

func valid(k Kind) bool { return k == Audio || k == Translation }

// cacheKey hashes (text, language) so arbitrary learner text cannot shape
// the key space.
func cacheKey(k Kind, text, language string) string {
	h := sha256.Sum256([]byte(language + "\x00" + text))
	return "artifact:" + string(k) + ":" + hex.EncodeToString(h[:])
}

// Lookup returns the cached value for (kind, text, language), reporting
// whether an entry exists.
func Lookup(k Kind, text, language string) (Entry, bool, error) {
	if !valid(k) || strings.TrimSpace(text) == "" {
		return Entry{}, false, models.ErrValidationFailed
	}
	v, err := store.GetKey(cacheKey(k, text, language))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(v), &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Put stores an artifact; an existing entry wins and is returned unchanged.
func Put(k Kind, text, language, value string) (Entry, error) {
	text = strings.TrimSpace(text)
	value = strings.TrimSpace(value)
	if !valid(k) || text == "" || value == "" || len(value) > maxValueLen {
		return Entry{}, models.ErrValidationFailed
	}
	if existing, ok, err := Lookup(k, text, language); err != nil {
		return Entry{}, err
	} else if ok {
		return existing, nil
	}
	e := Entry{Kind: k, Text: text, Language: language, Value: value, CreatedTS: time.Now().UTC().UnixNano()}
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	if err := store.SaveKey(cacheKey(k, text, language), data); err != nil {
		return Entry{}, err
	}
	logger.Log.Debug("artifact_cached", zap.String("kind", string(k)), zap.String("language", language))
	return e, nil
}
