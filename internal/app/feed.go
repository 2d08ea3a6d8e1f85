package app

import (
	"sync"

	"lms-quiz-service/internal/domain"
)

// LeaderboardFeed fans committed leaderboard snapshots out to subscribers,
// keyed by module id. It is a read-only projection: submissions publish after
// their transaction commits, so a snapshot never shows an uncommitted grade.
type LeaderboardFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardFeed() *LeaderboardFeed {
	return &LeaderboardFeed{
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe registers for snapshots of one module's leaderboard. The caller
// must invoke the returned cancel function to avoid leaks.
func (f *LeaderboardFeed) Subscribe(moduleID string) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	f.mu.Lock()
	if f.subscribers[moduleID] == nil {
		f.subscribers[moduleID] = make(map[chan domain.Leaderboard]struct{})
	}
	f.subscribers[moduleID][ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if subs, ok := f.subscribers[moduleID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.subscribers, moduleID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// HasSubscribers lets publishers skip the snapshot query when nobody listens.
func (f *LeaderboardFeed) HasSubscribers(moduleID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers[moduleID]) > 0
}

// Publish delivers a snapshot to every subscriber of its module. Slow
// subscribers have their oldest pending snapshot dropped rather than blocking
// the publisher; only the latest snapshot matters.
func (f *LeaderboardFeed) Publish(lb domain.Leaderboard) {
	// Exclusive lock serializes publishers so the drain-then-send below can
	// never block on a channel another publisher just refilled.
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[lb.ModuleID] {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
