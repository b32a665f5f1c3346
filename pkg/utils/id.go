package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

func gen(prefix string) string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, n, s)
}

// GenID returns a new message id.
func GenID() string { return gen("msg") }

// GenThreadID returns a new thread id.
func GenThreadID() string { return gen("thread") }

// GenApprovalID returns a new tool-call approval id.
func GenApprovalID() string { return gen("appr") }

// GenFlashcardID returns a new flashcard id.
func GenFlashcardID() string { return gen("card") }
