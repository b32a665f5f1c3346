package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"lingua/pkg/models"
	"lingua/pkg/threads"
	"lingua/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// streamDeltas handles GET /threads/{threadID}/deltas as a server-sent
// event stream. The resume cursor comes from ?after=N or, on EventSource
// reconnects, the Last-Event-ID header; every buffered delta with a higher
// sequence is replayed before the live tail. The event id is the delta's
// sequence number so clients resume with no duplicates and no gaps.
func streamDeltas(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	threadID := mux.Vars(r)["threadID"]
	if _, err := threads.GetOwnedThread(threadID, user); err != nil {
		writeErr(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	after := uint64(0)
	if s := r.URL.Query().Get("after"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		after = n
	} else if s := r.Header.Get("Last-Event-ID"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			after = n
		}
	}

	ch, cancel := deps.Streamer.Subscribe(threadID, after)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case d, open := <-ch:
			if !open {
				// dropped as too slow; the client reconnects from its cursor
				return
			}
			if err := writeDelta(w, d); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeDelta(w http.ResponseWriter, d models.StreamDelta) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: delta\ndata: %s\n\n", d.Seq, data)
	return err
}
