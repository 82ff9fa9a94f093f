package service

import (
	"context"
	"encoding/json"

	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// Connected greets a (re)connecting session. A customer who logged in over
// HTTP before the socket opened, or who is resuming after a drop, gets
// their profile and cart pushed.
func (s *Service) Connected(sessionID string) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.session(sessionID)
	s.logger.Info("session connected", "session_id", sessionID, "logged_in", st.userID != "")
	if st.userID == "" {
		return
	}
	u, err := s.users.GetByID(ctx, st.userID)
	if err != nil {
		st.userID = ""
		return
	}
	s.push(sessionID, wire.TypeUserInfo, wire.UserInfo{User: u.Wire()})
	s.pushCart(sessionID, st)
}

// Disconnected keeps the session state so the kiosk can resume.
func (s *Service) Disconnected(sessionID string) {
	s.logger.Info("session disconnected", "session_id", sessionID)
}

// HandleMessage dispatches one message read from a session socket.
func (s *Service) HandleMessage(sessionID string, data []byte) {
	t, err := wire.PeekType(data)
	if err != nil {
		s.metrics.MessageError("", "missing_type")
		s.logger.Warn("message without type", "session_id", sessionID, "error", err)
		return
	}
	s.metrics.MessageReceived(string(t), len(data))

	switch t {
	case wire.TypeFrame:
		var m wire.Frame
		if s.decode(sessionID, t, data, &m) {
			s.handleFrame(sessionID, m)
		}
	case wire.TypePing:
		s.mu.Lock()
		s.push(sessionID, wire.TypePong, wire.Pong{Timestamp: s.now().UTC().Format(wire.TimeLayout)})
		s.mu.Unlock()
	case wire.TypeCartRemove:
		var m wire.CartRemove
		if s.decode(sessionID, t, data, &m) {
			s.handleCartRemove(sessionID, m)
		}
	default:
		s.metrics.MessageError(string(t), "unknown_type")
		s.logger.Warn("unknown message type", "session_id", sessionID, "type", t)
	}
}

func (s *Service) decode(sessionID string, t wire.Type, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.metrics.MessageError(string(t), "decode_error")
		s.logger.Warn("malformed message", "session_id", sessionID, "type", t, "error", err)
		return false
	}
	return true
}

func (s *Service) handleFrame(sessionID string, m wire.Frame) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.session(sessionID)
	if !st.limiter.AllowN(s.now(), 1) {
		s.metrics.FrameThrottled()
		return
	}

	raw, err := decodeImage(m.Frame)
	if err != nil {
		s.metrics.MessageError(string(wire.TypeFrame), "bad_image")
		s.logger.Warn("frame decode failed", "session_id", sessionID, "error", err)
		return
	}
	s.metrics.FrameProcessed()

	if st.userID == "" {
		s.faceCheck(ctx, sessionID, st, raw)
		return
	}
	s.detect(sessionID, st)
}

// faceCheck runs face recognition for a session nobody is logged into.
func (s *Service) faceCheck(ctx context.Context, sessionID string, st *session, raw []byte) {
	box := faceBox
	if u, err := s.users.GetByFace(ctx, digest(raw)); err == nil {
		s.login(ctx, st, u)
		s.push(sessionID, wire.TypeUserLogin, wire.UserLogin{User: u.Wire(), BBox: &box})
		s.logger.Info("customer recognised", "session_id", sessionID, "user_id", u.ID)
		return
	}

	st.frames++
	if st.frames <= s.scenario.Face.AfterFrames {
		s.push(sessionID, wire.TypeFaceStatus, wire.FaceStatus{Detected: false})
		return
	}

	u, err := s.recognise(ctx, raw)
	if err == nil {
		s.login(ctx, st, u)
		s.push(sessionID, wire.TypeUserLogin, wire.UserLogin{User: u.Wire(), BBox: &box})
		s.logger.Info("customer recognised", "session_id", sessionID, "user_id", u.ID)
		return
	}

	if st.pendingFace != "" {
		// Already prompted; keep the face indicator lit.
		s.push(sessionID, wire.TypeFaceStatus, wire.FaceStatus{Detected: true})
		return
	}
	st.pendingFace = digest(raw)
	s.push(sessionID, wire.TypeFaceDetected, wire.FaceDetected{Action: wire.ActionRegisterPrompt, BBox: &box})
	s.logger.Info("unknown face, waiting for registration", "session_id", sessionID)
}

// detect plays the next script step for a shopping customer.
func (s *Service) detect(sessionID string, st *session) {
	dets := s.scenario.Detections(st.step)
	st.step++
	if len(dets) == 0 {
		return
	}

	s.push(sessionID, wire.TypeDetections, wire.Detections{
		Detections: dets,
		Timestamp:  s.now().UTC().Format(wire.TimeLayout),
	})
	for _, d := range dets {
		if d.Product == nil {
			continue
		}
		st.add(*d.Product)
		s.metrics.ProductDetected(d.Product.ID)
		s.pushCart(sessionID, st)
		s.push(sessionID, wire.TypeProductAdded, wire.ProductAdded{Product: *d.Product, Confidence: d.Confidence})
		s.logger.Info("product added to cart", "session_id", sessionID, "product", d.Product.Name)
	}
}

func (s *Service) handleCartRemove(sessionID string, m wire.CartRemove) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.session(sessionID)
	if m.Index >= 0 && m.Index < len(st.cart) {
		removed := st.cart[m.Index]
		st.cart = append(st.cart[:m.Index], st.cart[m.Index+1:]...)
		s.logger.Info("cart item removed", "session_id", sessionID, "product", removed.Name)
	} else {
		s.logger.Warn("cart index out of range", "session_id", sessionID, "index", m.Index, "items", len(st.cart))
	}
	s.pushCart(sessionID, st)
}
