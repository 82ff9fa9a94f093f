// Package service plays the perception backend: it keeps per-session state
// (customer, cart, pending face), answers session socket messages from the
// scenario script and serves the store's HTTP operations.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/metrics"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/model"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/repository"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/scenario"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// faceBox is where the scripted face appears in the frame.
var faceBox = [4]float64{200, 120, 440, 400}

// Sender delivers messages to connected sessions.
type Sender interface {
	Send(sessionID string, data []byte) bool
	Sessions() int
}

// Config holds the service settings
type Config struct {
	FrameRate     float64
	FrameBurst    int
	AdminUsername string
	AdminPassword string
}

type session struct {
	userID string
	cart   []wire.CartItem

	// digest of the unknown face awaiting registration
	pendingFace string
	frames      int
	step        int
	limiter     *rate.Limiter
}

// Service implements the simulated backend
type Service struct {
	cfg          Config
	scenario     *scenario.Scenario
	users        repository.UserRepository
	transactions repository.TransactionRepository
	sender       Sender
	logger       *slog.Logger
	metrics      metrics.Collector
	now          func() time.Time
	newID        func() string

	mu       sync.Mutex
	sessions map[string]*session
}

// Option customises a Service
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDs replaces the id generator used for customers and transactions.
func WithIDs(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// New creates the service
func New(cfg Config, sc *scenario.Scenario, users repository.UserRepository, transactions repository.TransactionRepository, sender Sender, opts ...Option) *Service {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 5
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = 1
	}
	s := &Service{
		cfg:          cfg,
		scenario:     sc,
		users:        users,
		transactions: transactions,
		sender:       sender,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:      metrics.Nop{},
		now:          time.Now,
		newID:        newID,
		sessions:     make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed registers the scenario's customers.
func (s *Service) Seed(ctx context.Context) error {
	for _, c := range s.scenario.Customers {
		birthday, err := model.ParseDate(c.Birthday)
		if err != nil {
			return fmt.Errorf("customer %s: %w", c.Name, err)
		}
		u := &model.User{ID: s.newID(), Name: c.Name, Phone: c.Phone, Birthday: birthday}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed customer %s: %w", c.Name, err)
		}
		s.logger.Info("seeded customer", "user_id", u.ID, "name", u.Name)
	}
	return nil
}

// session returns the state for id, creating it. s.mu must be held.
func (s *Service) session(id string) *session {
	st, ok := s.sessions[id]
	if !ok {
		st = &session{limiter: rate.NewLimiter(rate.Limit(s.cfg.FrameRate), s.cfg.FrameBurst)}
		s.sessions[id] = st
	}
	return st
}

// push encodes and sends one message. s.mu must be held so that messages of
// a session leave in the order they were produced.
func (s *Service) push(sessionID string, t wire.Type, payload any) {
	data, err := wire.Marshal(t, payload)
	if err != nil {
		s.logger.Error("failed to encode message", "type", t, "error", err)
		return
	}
	if !s.sender.Send(sessionID, data) {
		s.logger.Debug("session not connected, message dropped", "session_id", sessionID, "type", t)
	}
}

func (s *Service) pushCart(sessionID string, st *session) {
	s.push(sessionID, wire.TypeCartUpdated, wire.CartUpdate{Cart: cartOf(st)})
}

func cartOf(st *session) wire.Cart {
	c := wire.Cart{Items: make([]wire.CartItem, len(st.cart))}
	copy(c.Items, st.cart)
	for _, it := range st.cart {
		c.TotalQuantity += it.Quantity
		c.TotalAmount += it.Subtotal
	}
	return c
}

func (st *session) add(p wire.Product) {
	for i := range st.cart {
		if st.cart[i].ProductID == p.ID {
			st.cart[i].Quantity++
			st.cart[i].Subtotal = float64(st.cart[i].Quantity) * st.cart[i].UnitPrice
			return
		}
	}
	st.cart = append(st.cart, wire.CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		Subtotal:  p.Price,
	})
}

// login attaches a customer to the session. s.mu must be held.
func (s *Service) login(ctx context.Context, st *session, u *model.User) {
	st.userID = u.ID
	st.pendingFace = ""
	st.frames = 0
	st.step = 0

	u.LastVisit = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		s.logger.Warn("failed to record visit", "user_id", u.ID, "error", err)
	}
}

// decodeImage accepts a base64 JPEG, with or without a data URL prefix,
// and returns the raw bytes.
func decodeImage(data string) ([]byte, error) {
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return raw, nil
}

func digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// recognise finds the customer whose face is in raw: first an exact match
// with a registered face, then the scenario's scripted customer.
func (s *Service) recognise(ctx context.Context, raw []byte) (*model.User, error) {
	u, err := s.users.GetByFace(ctx, digest(raw))
	if err == nil {
		return u, nil
	}
	if phone := s.scenario.Face.Phone; phone != "" {
		if u, err := s.users.GetByPhone(ctx, phone); err == nil {
			return u, nil
		}
	}
	return nil, ErrUnknownFace
}

func newID() string { return uuid.NewString() }
