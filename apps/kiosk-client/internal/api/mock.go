package api

import (
	"context"

	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// MockClient is a mock implementation of the Client interface for testing
type MockClient struct {
	FaceLoginFunc        func(ctx context.Context, req wire.FaceLoginRequest) (*wire.User, error)
	FaceRegisterFunc     func(ctx context.Context, req wire.FaceRegisterRequest) (*wire.User, error)
	RegisterFunc         func(ctx context.Context, req wire.RegisterRequest) (*wire.User, error)
	CheckoutFunc         func(ctx context.Context, sessionID string) (*wire.CheckoutResponse, error)
	UserInfoFunc         func(ctx context.Context, userID string) (*wire.User, error)
	UserTransactionsFunc func(ctx context.Context, userID string) (*wire.TransactionsResponse, error)
	AdminLoginFunc       func(ctx context.Context, req wire.AdminLoginRequest) error
	AdminUsersFunc       func(ctx context.Context) ([]wire.AdminUser, error)
	AdminUserFunc        func(ctx context.Context, userID string) (*wire.AdminUser, error)
	UpdateUserFunc       func(ctx context.Context, userID string, req wire.UpdateUserRequest) error
	DeleteUserFunc       func(ctx context.Context, userID string) error
	AdminStatsFunc       func(ctx context.Context) (*wire.Stats, error)
}

var _ Client = (*MockClient)(nil)

func (c *MockClient) FaceLogin(ctx context.Context, req wire.FaceLoginRequest) (*wire.User, error) {
	if c.FaceLoginFunc != nil {
		return c.FaceLoginFunc(ctx, req)
	}
	return &wire.User{ID: "user_mock", Name: "Mock"}, nil
}

func (c *MockClient) FaceRegister(ctx context.Context, req wire.FaceRegisterRequest) (*wire.User, error) {
	if c.FaceRegisterFunc != nil {
		return c.FaceRegisterFunc(ctx, req)
	}
	return &wire.User{ID: "user_mock", Name: req.Name, Phone: req.Phone}, nil
}

func (c *MockClient) Register(ctx context.Context, req wire.RegisterRequest) (*wire.User, error) {
	if c.RegisterFunc != nil {
		return c.RegisterFunc(ctx, req)
	}
	return &wire.User{ID: "user_mock", Name: req.Name, Phone: req.Phone}, nil
}

func (c *MockClient) Checkout(ctx context.Context, sessionID string) (*wire.CheckoutResponse, error) {
	if c.CheckoutFunc != nil {
		return c.CheckoutFunc(ctx, sessionID)
	}
	return &wire.CheckoutResponse{Response: wire.Response{Success: true}}, nil
}

func (c *MockClient) UserInfo(ctx context.Context, userID string) (*wire.User, error) {
	if c.UserInfoFunc != nil {
		return c.UserInfoFunc(ctx, userID)
	}
	return &wire.User{ID: userID}, nil
}

func (c *MockClient) UserTransactions(ctx context.Context, userID string) (*wire.TransactionsResponse, error) {
	if c.UserTransactionsFunc != nil {
		return c.UserTransactionsFunc(ctx, userID)
	}
	return &wire.TransactionsResponse{Response: wire.Response{Success: true}}, nil
}

func (c *MockClient) AdminLogin(ctx context.Context, req wire.AdminLoginRequest) error {
	if c.AdminLoginFunc != nil {
		return c.AdminLoginFunc(ctx, req)
	}
	return nil
}

func (c *MockClient) AdminUsers(ctx context.Context) ([]wire.AdminUser, error) {
	if c.AdminUsersFunc != nil {
		return c.AdminUsersFunc(ctx)
	}
	return nil, nil
}

func (c *MockClient) AdminUser(ctx context.Context, userID string) (*wire.AdminUser, error) {
	if c.AdminUserFunc != nil {
		return c.AdminUserFunc(ctx, userID)
	}
	return &wire.AdminUser{User: wire.User{ID: userID}}, nil
}

func (c *MockClient) UpdateUser(ctx context.Context, userID string, req wire.UpdateUserRequest) error {
	if c.UpdateUserFunc != nil {
		return c.UpdateUserFunc(ctx, userID, req)
	}
	return nil
}

func (c *MockClient) DeleteUser(ctx context.Context, userID string) error {
	if c.DeleteUserFunc != nil {
		return c.DeleteUserFunc(ctx, userID)
	}
	return nil
}

func (c *MockClient) AdminStats(ctx context.Context) (*wire.Stats, error) {
	if c.AdminStatsFunc != nil {
		return c.AdminStatsFunc(ctx)
	}
	return &wire.Stats{}, nil
}
