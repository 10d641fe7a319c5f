package realtime

import "sync"

// Rooms maps loan IDs to the users watching their progress. Membership is
// tracked per user, not per connection: a user whose connections all drop
// stays subscribed and simply receives nothing until they reconnect, at
// which point the snapshot-on-subscribe resyncs them.
type Rooms struct {
	mu     sync.RWMutex
	byLoan map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{byLoan: make(map[string]map[string]struct{})}
}

// Subscribe is idempotent; the room is created lazily on first use.
func (r *Rooms) Subscribe(loanID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byLoan[loanID] == nil {
		r.byLoan[loanID] = make(map[string]struct{})
	}
	r.byLoan[loanID][userID] = struct{}{}
}

// Unsubscribe is idempotent; unsubscribing a non-member is a no-op. An empty
// room is discarded.
func (r *Rooms) Unsubscribe(loanID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byLoan[loanID]
	if set == nil {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(r.byLoan, loanID)
	}
}

// SubscribersOf returns a snapshot of the room's user set.
func (r *Rooms) SubscribersOf(loanID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byLoan[loanID]
	out := make([]string, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	return out
}

func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byLoan)
}
