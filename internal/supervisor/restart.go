package supervisor

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// RestartPolicy governs whether a supervisor automatically restarts its
// child after an unexpected exit. It never changes the meaning of an
// explicit start/stop/restart call.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second

	// stabilityWindow is how long a child must stay up before a later
	// crash is treated as a fresh failure streak rather than a
	// continuation of the current backoff escalation.
	stabilityWindow = 60 * time.Second
)

// monitorRestart waits for the child tracked by done to exit and, unless
// the exit was triggered by an explicit Stop/Restart call, applies the
// configured restart policy with exponential backoff.
func (s *Supervisor) monitorRestart(done <-chan struct{}) {
	<-done

	s.mu.Lock()
	// A newer child (started by Restart) has already replaced this one.
	superseded := s.done != done
	manual := s.manualStop
	policy := s.restartPolicy
	uptime := time.Since(s.startedAt)
	var rc int
	if s.returncode != nil {
		rc = *s.returncode
	}
	s.mu.Unlock()

	if superseded || manual || policy == RestartNever {
		return
	}

	shouldRestart := policy == RestartAlways || (policy == RestartOnFailure && rc != 0)
	if !shouldRestart {
		return
	}

	s.mu.Lock()
	if uptime >= stabilityWindow {
		s.failures = 0
	}
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	backoff := calculateBackoff(failures)
	log.Info().Str("process", s.Name).Dur("backoff", backoff).Int("attempt", failures).Msg("scheduling automatic restart")
	time.Sleep(backoff)

	if err := s.Start(); err != nil {
		log.Warn().Err(err).Str("process", s.Name).Msg("automatic restart failed")
	}
}

// calculateBackoff returns 1s, 2s, 4s, ... capped at maxBackoff.
func calculateBackoff(failures int) time.Duration {
	backoff := float64(minBackoff) * math.Pow(2, float64(failures-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}
