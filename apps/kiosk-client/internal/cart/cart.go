// Package cart holds the kiosk's view of the shopping cart. The server owns
// the cart; the kiosk only ever replaces its copy with a full snapshot.
package cart

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/metrics"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

var ErrIndexOutOfRange = errors.New("cart index out of range")

// Item is one line of a snapshot.
type Item struct {
	ProductID string
	Name      string
	UnitPrice float64
	Quantity  int
	Subtotal  float64
}

// Snapshot is a complete, immutable cart. It is only built from the wire or
// Empty; there is no delta constructor.
type Snapshot struct {
	items         []Item
	totalQuantity int
	totalAmount   float64
}

// Empty returns the empty cart.
func Empty() Snapshot { return Snapshot{} }

// FromWire converts a server-pushed cart.
func FromWire(c wire.Cart) Snapshot {
	items := make([]Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		}
	}
	return Snapshot{
		items:         items,
		totalQuantity: c.TotalQuantity,
		totalAmount:   c.TotalAmount,
	}
}

// Items returns a copy of the line items.
func (s Snapshot) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of line items.
func (s Snapshot) Len() int { return len(s.items) }

// TotalQuantity returns the server-reported item count.
func (s Snapshot) TotalQuantity() int { return s.totalQuantity }

// TotalAmount returns the server-reported total.
func (s Snapshot) TotalAmount() float64 { return s.totalAmount }

// IsEmpty reports whether the cart has no line items.
func (s Snapshot) IsEmpty() bool { return len(s.items) == 0 }

// Item returns line i, or false when i is out of range.
func (s Snapshot) Item(i int) (Item, bool) {
	if i < 0 || i >= len(s.items) {
		return Item{}, false
	}
	return s.items[i], true
}

// Wire converts the snapshot back to its wire form.
func (s Snapshot) Wire() wire.Cart {
	items := make([]wire.CartItem, len(s.items))
	for i, it := range s.items {
		items[i] = wire.CartItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		}
	}
	return wire.Cart{Items: items, TotalQuantity: s.totalQuantity, TotalAmount: s.totalAmount}
}

// Status is the coarse cart state.
type Status int

const (
	StatusEmpty Status = iota
	StatusNonEmpty
)

func (s Status) String() string {
	if s == StatusNonEmpty {
		return "non-empty"
	}
	return "empty"
}

// Sender puts a removal request on the session channel.
type Sender interface {
	Send(m wire.Outbound) bool
}

// State is the kiosk-side cart. It lives on the session loop.
type State struct {
	current   Snapshot
	sender    Sender
	logger    *slog.Logger
	metrics   metrics.Collector
	observers []func(Snapshot)
}

// New creates an empty cart that sends removal requests through sender.
func New(sender Sender, logger *slog.Logger, m metrics.Collector) *State {
	if m == nil {
		m = metrics.Nop{}
	}
	return &State{sender: sender, logger: logger.With("component", "cart"), metrics: m}
}

// OnChange registers fn to be called after every Apply or Clear.
func (s *State) OnChange(fn func(Snapshot)) {
	s.observers = append(s.observers, fn)
}

// Apply replaces the current cart with snap.
func (s *State) Apply(snap Snapshot) {
	s.current = snap
	s.metrics.CartApplied(snap.Len())
	s.logger.Debug("cart replaced", "items", snap.Len(), "total_quantity", snap.totalQuantity, "total_amount", snap.totalAmount)
	s.notify()
}

// Clear drops the local cart, e.g. on logout.
func (s *State) Clear() {
	s.Apply(Empty())
}

// Snapshot returns the current cart.
func (s *State) Snapshot() Snapshot { return s.current }

// Status reports whether the cart is empty.
func (s *State) Status() Status {
	if s.current.IsEmpty() {
		return StatusEmpty
	}
	return StatusNonEmpty
}

// RequestRemoval asks the server to remove line index. The local cart is
// left untouched; the server answers with a fresh snapshot. An index outside
// the current snapshot is rejected without contacting the server.
func (s *State) RequestRemoval(index int) error {
	if index < 0 || index >= s.current.Len() {
		s.metrics.CartRemovalRejected()
		return fmt.Errorf("%w: %d (cart has %d items)", ErrIndexOutOfRange, index, s.current.Len())
	}
	if !s.sender.Send(wire.CartRemove{Index: index}) {
		s.logger.Warn("removal request not sent, channel is not connected", "index", index)
	}
	return nil
}

func (s *State) notify() {
	for _, fn := range s.observers {
		fn(s.current)
	}
}
