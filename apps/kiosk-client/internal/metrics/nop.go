package metrics

import "net/http"

// Nop discards everything. Components fall back to it when no collector is
// configured.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) ChannelState(string) {}
func (Nop) ConnectAttempt() {}
func (Nop) ReconnectScheduled(int) {}
func (Nop) ReconnectExhausted() {}
func (Nop) MessageSent(string, int) {}
func (Nop) MessageDropped(string) {}
func (Nop) MessageReceived(string, int) {}
func (Nop) DispatchError(string, string) {}
func (Nop) FrameEmitted(int) {}
func (Nop) FrameSkipped(string) {}
func (Nop) OverlayRendered(int) {}
func (Nop) CartApplied(int) {}
func (Nop) CartRemovalRejected() {}

func (Nop) Handler() http.Handler { return http.NotFoundHandler() }
