// Package streamer publishes incremental generation output as an ordered,
// replayable sequence per thread. Subscription is "read from cursor
// forward": a subscriber presents the highest sequence number it has seen
// and receives the buffered remainder followed by a seamless live tail,
// with no duplicates and no gaps. Deltas are transient; once a message
// finalizes its buffered deltas are discarded and the ledger text becomes
// the sole source of truth.
package streamer

import (
	"sync"

	"go.uber.org/zap"

	"lingua/pkg/logger"
	"lingua/pkg/models"
	"lingua/pkg/telemetry"
)

// subscriber live-tail channels hold this many deltas beyond the catch-up
// backlog; a subscriber that falls further behind is dropped and must
// resubscribe from its cursor.
const tailBuffer = 256

type subscriber struct {
	ch     chan models.StreamDelta
	closed bool
}

type threadLog struct {
	seq     uint64
	backlog []models.StreamDelta
	subs    map[*subscriber]struct{}
}

// Streamer fans deltas out to any number of viewers per thread.
type Streamer struct {
	mu      sync.Mutex
	threads map[string]*threadLog
}

// New returns an empty Streamer.
func New() *Streamer {
	return &Streamer{threads: map[string]*threadLog{}}
}

func (s *Streamer) log(threadID string) *threadLog {
	tl, ok := s.threads[threadID]
	if !ok {
		tl = &threadLog{subs: map[*subscriber]struct{}{}}
		s.threads[threadID] = tl
	}
	return tl
}

// Publish assigns the next per-thread sequence number to d, buffers it for
// catch-up, and delivers it to live subscribers. Returns the assigned seq.
func (s *Streamer) Publish(d models.StreamDelta) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl := s.log(d.Thread)
	tl.seq++
	d.Seq = tl.seq
	tl.backlog = append(tl.backlog, d)
	for sub := range tl.subs {
		select {
		case sub.ch <- d:
		default:
			// subscriber stalled; drop it so the publisher never blocks
			delete(tl.subs, sub)
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
				telemetry.StreamSubscribers.Dec()
			}
			logger.Log.Warn("delta_subscriber_dropped", zap.String("thread", d.Thread), zap.Uint64("seq", d.Seq))
		}
	}
	return d.Seq
}

// Text publishes an incremental text fragment for a message.
func (s *Streamer) Text(threadID, msgID, fragment string) uint64 {
	return s.Publish(models.StreamDelta{Thread: threadID, Message: msgID, Kind: models.DeltaText, Text: fragment})
}

// Approval announces a newly created pending approval inline in the stream.
func (s *Streamer) Approval(threadID, msgID, approvalID string) uint64 {
	return s.Publish(models.StreamDelta{Thread: threadID, Message: msgID, Kind: models.DeltaApproval, ApprovalID: approvalID})
}

// Final announces a message's terminal status.
func (s *Streamer) Final(threadID, msgID string, status models.MessageStatus) uint64 {
	return s.Publish(models.StreamDelta{Thread: threadID, Message: msgID, Kind: models.DeltaFinal, Status: status})
}

// Subscribe attaches a viewer at the given cursor. All buffered deltas with
// seq > afterSeq are already in the returned channel, followed by the live
// tail; the backlog snapshot and the live registration happen under one
// lock so the boundary is seamless. The cancel func detaches the viewer.
// The channel is closed when the viewer is cancelled or dropped as too slow.
func (s *Streamer) Subscribe(threadID string, afterSeq uint64) (<-chan models.StreamDelta, func()) {
	s.mu.Lock()
	tl := s.log(threadID)
	var pending []models.StreamDelta
	for _, d := range tl.backlog {
		if d.Seq > afterSeq {
			pending = append(pending, d)
		}
	}
	sub := &subscriber{ch: make(chan models.StreamDelta, len(pending)+tailBuffer)}
	for _, d := range pending {
		sub.ch <- d
	}
	tl.subs[sub] = struct{}{}
	telemetry.StreamSubscribers.Inc()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := tl.subs[sub]; ok {
			delete(tl.subs, sub)
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
			telemetry.StreamSubscribers.Dec()
		}
	}
	return sub.ch, cancel
}

// Discard drops buffered deltas belonging to a finalized message. Sequence
// numbers keep increasing; only the catch-up buffer shrinks.
func (s *Streamer) Discard(threadID, msgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.threads[threadID]
	if !ok {
		return
	}
	kept := tl.backlog[:0]
	for _, d := range tl.backlog {
		if d.Message != msgID {
			kept = append(kept, d)
		}
	}
	tl.backlog = kept
}

// Seq returns the current sequence number for a thread.
func (s *Streamer) Seq(threadID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tl, ok := s.threads[threadID]; ok {
		return tl.seq
	}
	return 0
}
