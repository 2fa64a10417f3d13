package auth

import "time"

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Throttled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.throttles)
}

const MaxThrottled = maxThrottled

func (s *Service) RecordFailure(username string) { s.recordFailure(username) }
