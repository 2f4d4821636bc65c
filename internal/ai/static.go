package ai

import (
	"context"
	"sync"
)

// StaticBackend replays fixed replies in order and then keeps repeating the
// last one. It is meant for dry runs and demos without model access.
type StaticBackend struct {
	mu      sync.Mutex
	replies []string
	next    int
}

// NewStaticBackend creates a StaticBackend.
func NewStaticBackend(replies ...string) *StaticBackend {
	return &StaticBackend{replies: append([]string(nil), replies...)}
}

// Name implements Backend.
func (s *StaticBackend) Name() BackendName { return BackendStatic }

// Generate returns the next reply. The prompt is ignored.
func (s *StaticBackend) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replies) == 0 {
		return "", ErrEmptyReply
	}
	reply := s.replies[min(s.next, len(s.replies)-1)]
	if s.next < len(s.replies) {
		s.next++
	}
	return reply, nil
}
