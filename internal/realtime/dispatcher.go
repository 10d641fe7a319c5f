package realtime

import (
	"sync"

	"github.com/coopvest/coopvest"
)

// Dispatcher fans loan events out to every connection of every user
// subscribed to the loan's room. A single mutex serializes dispatches, so
// events for one loan reach each connection in generation order; no ordering
// is promised across loans.
type Dispatcher struct {
	registry *Registry
	rooms    *Rooms
	mu       sync.Mutex
}

func NewDispatcher(registry *Registry, rooms *Rooms) *Dispatcher {
	return &Dispatcher{registry: registry, rooms: rooms}
}

// BroadcastProgress derives the progress view and delivers it to the loan's
// subscribers. Returns the number of connections that accepted the frame.
func (d *Dispatcher) BroadcastProgress(loanID string, found, required int, guarantors []coopvest.Guarantor) int {
	frame := coopvest.NewLoanProgressFrame(loanID, coopvest.DeriveProgress(found, required), guarantors)

	d.mu.Lock()
	defer d.mu.Unlock()
	delivered := 0
	for _, userID := range d.rooms.SubscribersOf(loanID) {
		delivered += d.registry.DeliverToUser(userID, frame)
	}
	return delivered
}

// NotifyGuarantorAction delivers one guarantor's discrete action to the same
// subscriber set as the progress snapshots.
func (d *Dispatcher) NotifyGuarantorAction(loanID string, action coopvest.GuarantorAction) int {
	frame := coopvest.NewGuarantorActionFrame(loanID, action)

	d.mu.Lock()
	defer d.mu.Unlock()
	delivered := 0
	for _, userID := range d.rooms.SubscribersOf(loanID) {
		delivered += d.registry.DeliverToUser(userID, frame)
	}
	return delivered
}
