package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/model"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/repository"
	"github.com/Harshitk-cp/smartcart/libs/validate"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// Health summarises the store for /api/health.
type Health struct {
	Status            string `json:"status"`
	Products          int    `json:"products"`
	Customers         int    `json:"customers"`
	ActiveConnections int    `json:"active_connections"`
}

// Health reports catalog, customer and connection counts.
func (s *Service) Health(ctx context.Context) (*Health, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Health{
		Status:            "healthy",
		Products:          len(s.scenario.Catalog),
		Customers:         len(users),
		ActiveConnections: s.sender.Sessions(),
	}, nil
}

// Products returns the catalog.
func (s *Service) Products() []wire.Product {
	return s.scenario.Products()
}

// FaceLogin logs the customer in the photo into a session.
func (s *Service) FaceLogin(ctx context.Context, req wire.FaceLoginRequest) (*wire.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}
	raw, err := decodeImage(req.Image)
	if err != nil {
		return nil, ErrBadImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.recognise(ctx, raw)
	if err != nil {
		return nil, err
	}
	s.login(ctx, s.session(req.SessionID), u)
	s.logger.Info("face login", "session_id", req.SessionID, "user_id", u.ID)
	return u.Wire(), nil
}

// FaceRegister registers a new customer from a photo and logs them into the
// session.
func (s *Service) FaceRegister(ctx context.Context, req wire.FaceRegisterRequest) (*wire.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}
	birthday, err := model.ParseDate(req.Birthday)
	if err != nil {
		return nil, ErrBadBirthday
	}
	raw, err := decodeImage(req.Image)
	if err != nil {
		return nil, ErrBadImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.createUser(ctx, req.Name, req.Phone, birthday, digest(raw))
	if err != nil {
		return nil, err
	}
	s.login(ctx, s.session(req.SessionID), u)
	return u.Wire(), nil
}

// Register turns the session's pending unknown face into a customer and
// announces the login on the session socket.
func (s *Service) Register(ctx context.Context, req wire.RegisterRequest) (*wire.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[req.SessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if st.pendingFace == "" {
		return nil, ErrNoPendingFace
	}

	u, err := s.createUser(ctx, req.Name, req.Phone, time.Time{}, st.pendingFace)
	if err != nil {
		return nil, err
	}
	s.login(ctx, st, u)
	s.push(req.SessionID, wire.TypeUserLogin, wire.UserLogin{User: u.Wire(), IsNew: true})
	return u.Wire(), nil
}

func (s *Service) createUser(ctx context.Context, name, phone string, birthday time.Time, face string) (*model.User, error) {
	u := &model.User{
		ID:         s.newID(),
		Name:       name,
		Phone:      phone,
		Birthday:   birthday,
		FaceDigest: face,
		CreatedAt:  s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("customer registered", "user_id", u.ID, "name", u.Name)
	return u, nil
}

// Checkout records the session's cart as a transaction and empties it.
func (s *Service) Checkout(ctx context.Context, sessionID string) (*wire.CheckoutResponse, error) {
	if err := validate.Struct(wire.CheckoutRequest{SessionID: sessionID}); err != nil {
		return nil, invalidRequest(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if st.userID == "" {
		return nil, ErrNotLoggedIn
	}
	if len(st.cart) == 0 {
		return nil, ErrEmptyCart
	}
	u, err := s.users.GetByID(ctx, st.userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	summary := cartOf(st)
	tx := &model.Transaction{
		ID:            s.newID(),
		UserID:        u.ID,
		UserName:      u.Name,
		Items:         summary.Items,
		TotalQuantity: summary.TotalQuantity,
		TotalAmount:   summary.TotalAmount,
		CreatedAt:     s.now(),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	st.cart = nil
	s.pushCart(sessionID, st)
	s.metrics.Checkout(tx.TotalAmount)
	s.logger.Info("checkout complete", "session_id", sessionID, "user_id", u.ID, "total", tx.TotalAmount)

	return &wire.CheckoutResponse{
		Response:      wire.Response{Success: true, Message: "Checkout complete"},
		TransactionID: tx.ID,
		TotalAmount:   tx.TotalAmount,
	}, nil
}

// UserInfo returns a customer profile.
func (s *Service) UserInfo(ctx context.Context, userID string) (*wire.User, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Wire(), nil
}

// UserTransactions returns a customer's purchase history, newest first.
func (s *Service) UserTransactions(ctx context.Context, userID string) (*wire.TransactionsResponse, error) {
	txs, err := s.transactions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := &wire.TransactionsResponse{
		Response:     wire.Response{Success: true},
		Transactions: make([]wire.Transaction, len(txs)),
	}
	for i, t := range txs {
		resp.Transactions[i] = t.Wire()
		resp.TotalSpent += t.TotalAmount
	}
	resp.TotalTransactions = len(txs)
	return resp, nil
}

// AdminLogin checks the administrator credentials.
func (s *Service) AdminLogin(req wire.AdminLoginRequest) error {
	if err := validate.Struct(req); err != nil {
		return invalidRequest(err)
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.AdminPassword)) == 1
	if !userOK || !passOK {
		return ErrBadCredentials
	}
	return nil
}

// AdminUsers lists every customer with their spending.
func (s *Service) AdminUsers(ctx context.Context) ([]wire.AdminUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]wire.AdminUser, 0, len(users))
	for _, u := range users {
		au, err := s.adminUser(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, *au)
	}
	return out, nil
}

// AdminUser returns one customer with purchase totals.
func (s *Service) AdminUser(ctx context.Context, userID string) (*wire.AdminUser, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.adminUser(ctx, u)
}

func (s *Service) adminUser(ctx context.Context, u *model.User) (*wire.AdminUser, error) {
	txs, err := s.transactions.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	au := &wire.AdminUser{User: *u.Wire(), TotalTransactions: len(txs)}
	for _, t := range txs {
		au.TotalSpent += t.TotalAmount
	}
	return au, nil
}

// UpdateUser changes the fields present in req.
func (s *Service) UpdateUser(ctx context.Context, userID string, req wire.UpdateUserRequest) error {
	if err := validate.Struct(req); err != nil {
		return invalidRequest(err)
	}
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if req.Name != "" {
		u.Name = req.Name
	}
	if req.Phone != "" {
		u.Phone = req.Phone
	}
	if req.Birthday != "" {
		if u.Birthday, err = model.ParseDate(req.Birthday); err != nil {
			return ErrBadBirthday
		}
	}
	if err := s.users.Update(ctx, u); err != nil {
		return mapRepoError(err)
	}
	s.logger.Info("customer updated", "user_id", userID)
	return nil
}

// DeleteUser removes a customer and their purchases and logs them out of
// every session.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return mapRepoError(err)
	}
	if err := s.transactions.DeleteByUser(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	for _, st := range s.sessions {
		if st.userID == userID {
			st.userID = ""
			st.cart = nil
		}
	}
	s.mu.Unlock()

	s.logger.Info("customer deleted", "user_id", userID)
	return nil
}

// Stats returns store totals.
func (s *Service) Stats(ctx context.Context) (*wire.Stats, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := &wire.Stats{TotalUsers: len(users), TotalTransactions: len(txs)}
	for _, t := range txs {
		stats.TotalRevenue += t.TotalAmount
	}
	return stats, nil
}

func (s *Service) getUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return u, nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrPhoneTaken):
		return ErrPhoneTaken
	default:
		return err
	}
}
