package main

import (
	"sync"
	"time"
)

// Event types for live stats
const (
	EvtConnect      = "connect"
	EvtDisconnect   = "disconnect"
	EvtMatchCreated = "match_created"
	EvtMatchEnded   = "match_ended"
	EvtPlayerJoin   = "player_join"
	EvtPlayerLeave  = "player_leave"
	EvtJoinRejected = "join_rejected"
	EvtSnapshot     = "snapshot_sent"
	EvtEventSent    = "event_sent"
	EvtRateLimited  = "rate_limited"
)

// StatsEvent is a single trackable event
type StatsEvent struct {
	Type      string
	Match     string
	Timestamp time.Time
}

// Stats counts events with a batching background goroutine so tracking
// never blocks a match or a connection.
type Stats struct {
	events chan StatsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
	start  time.Time

	mu       sync.RWMutex
	counts   map[string]int64
	perMatch map[string]int64
}

// StatsView is the JSON body of GET /api/stats.
type StatsView struct {
	UptimeSeconds int64            `json:"uptimeSeconds"`
	Connections   int              `json:"connections"`
	Matches       int              `json:"matches"`
	Counts        map[string]int64 `json:"counts"`
	MatchEvents   map[string]int64 `json:"matchEvents"`
}

// NewStats creates and starts the stats writer
func NewStats() *Stats {
	s := &Stats{
		events:   make(chan StatsEvent, 1024),
		stop:     make(chan struct{}),
		start:    time.Now(),
		counts:   make(map[string]int64),
		perMatch: make(map[string]int64),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// Track enqueues an event (non-blocking)
func (s *Stats) Track(evtType, match string) {
	select {
	case s.events <- StatsEvent{Type: evtType, Match: match, Timestamp: time.Now()}:
	default:
		// Channel full, drop rather than block the caller
	}
}

// Stop flushes pending events and stops the writer
func (s *Stats) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// Counts returns a copy of the per-type counters.
func (s *Stats) Counts() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// View builds the stats endpoint body.
func (s *Stats) View(connections, matches int) StatsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := StatsView{
		UptimeSeconds: int64(time.Since(s.start).Seconds()),
		Connections:   connections,
		Matches:       matches,
		Counts:        make(map[string]int64, len(s.counts)),
		MatchEvents:   make(map[string]int64, len(s.perMatch)),
	}
	for k, n := range s.counts {
		v.Counts[k] = n
	}
	for k, n := range s.perMatch {
		v.MatchEvents[k] = n
	}
	return v
}

// writer batches events and folds them into the counters
func (s *Stats) writer() {
	defer s.wg.Done()

	batch := make([]StatsEvent, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-s.events:
			batch = append(batch, evt)
			if len(batch) >= 50 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.stop:
			// Drain remaining events
			for {
				select {
				case evt := <-s.events:
					batch = append(batch, evt)
				default:
					s.flush(batch)
					return
				}
			}
		}
	}
}

func (s *Stats) flush(events []StatsEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range events {
		s.counts[evt.Type]++
		switch {
		case evt.Type == EvtMatchEnded:
			delete(s.perMatch, evt.Match)
		case evt.Match != "":
			s.perMatch[evt.Match]++
		}
	}
}
