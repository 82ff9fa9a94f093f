package session

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/cart"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/channel"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/ui"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

var errNoUser = errors.New("message carries no user")

func (s *Session) handleUserInfo(m wire.UserInfo) error {
	if m.User == nil {
		return errNoUser
	}
	s.setUser(m.User)
	if m.IsNewUser {
		s.notifier.Notify(ui.Success, "Welcome, new customer "+m.User.Name)
	} else {
		s.notifier.Notify(ui.Success, "Welcome back, "+m.User.Name)
	}
	return nil
}

func (s *Session) handleUserLogin(m wire.UserLogin) error {
	if m.User == nil {
		return errNoUser
	}
	s.setUser(m.User)
	s.setFace(true)
	if m.IsNew {
		s.notifier.Notify(ui.Success, fmt.Sprintf("Welcome, %s! Registration complete", m.User.Name))
	} else {
		s.notifier.Notify(ui.Success, fmt.Sprintf("Welcome back, %s!", m.User.Name))
	}
	return nil
}

func (s *Session) handleFaceDetected(m wire.FaceDetected) error {
	if m.Action == wire.ActionRegisterPrompt {
		s.logger.Info("unknown face, prompting for registration")
		s.notifier.PromptRegistration()
	}
	s.setFace(true)
	return nil
}

func (s *Session) handleFaceStatus(m wire.FaceStatus) error {
	s.setFace(m.Detected)
	return nil
}

// handleCartUpdate serves both cart_update and cart_updated.
func (s *Session) handleCartUpdate(m wire.CartUpdate) error {
	s.cart.Apply(cart.FromWire(m.Cart))
	if m.AddedProduct != "" {
		s.notifier.Notify(ui.Info, "Added: "+m.AddedProduct)
	}
	return nil
}

func (s *Session) handleProductAdded(m wire.ProductAdded) error {
	s.notifier.Notify(ui.Info, "Added: "+m.Product.Name)
	return nil
}

func (s *Session) handleDetections(m wire.Detections) error {
	_, err := s.renderer.Render(m.Detections)
	return err
}

func (s *Session) handleProductDetected(m wire.ProductDetected) error {
	s.logger.Debug("product detected", "product", m.Product.Name)
	return nil
}

func (s *Session) handleError(m wire.Error) error {
	msg := m.Message
	if msg == "" {
		msg = "An error occurred"
	}
	s.notifier.Notify(ui.Error, msg)
	return nil
}

func (s *Session) setUser(u *wire.User) {
	user := *u
	s.user = &user
	s.logger.Info("customer logged in", "user_id", user.ID)
	s.publish()
}

func (s *Session) setFace(detected bool) {
	if s.face == detected {
		return
	}
	s.face = detected
	s.notifier.SetFaceDetected(detected)
	s.publish()
}

func (s *Session) onCartChange(snap cart.Snapshot) {
	items := snap.Items()
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s x%d  %.2f", it.Name, it.Quantity, it.Subtotal)
	}
	s.notifier.ShowCart(lines, snap.TotalQuantity(), snap.TotalAmount())
	s.publish()
}

// onChannelState maps channel transitions onto the connectivity indicator.
func (s *Session) onChannelState(st channel.State) {
	prev := s.prevState
	s.prevState = st

	switch st {
	case channel.Connecting:
		s.notifier.SetConnectivity(ui.Connecting)
	case channel.Connected:
		s.notifier.SetConnectivity(ui.Online)
	case channel.Disconnected:
		s.notifier.SetConnectivity(ui.Offline)
		if prev == channel.Connected {
			s.notifier.Notify(ui.Warning, "Connection interrupted, reconnecting")
		}
	case channel.Exhausted:
		s.notifier.SetConnectivity(ui.Lost)
		s.notifier.Notify(ui.Error, "Connection lost, please reload")
	case channel.Closed:
		s.notifier.SetConnectivity(ui.Offline)
	}
	s.publish()
}
