package wire

// HTTP request and response bodies of the collaborator endpoints.
// Every response is a JSON object with a "success" flag; failures carry a
// human-readable reason in message, error or detail.

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Reason returns the first non-empty failure text of the envelope.
func (r Response) Reason() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	default:
		return r.Detail
	}
}

type FaceLoginRequest struct {
	Image     string `json:"image" validate:"required"`
	SessionID string `json:"session_id" validate:"required,sessionid"`
}

type FaceRegisterRequest struct {
	Name      string `json:"name" validate:"required,max=64"`
	Phone     string `json:"phone" validate:"required,phone"`
	Birthday  string `json:"birthday,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Image     string `json:"image" validate:"required"`
	SessionID string `json:"session_id" validate:"required,sessionid"`
}

type RegisterRequest struct {
	SessionID string `json:"session_id" validate:"required,sessionid"`
	Name      string `json:"name" validate:"required,max=64"`
	Phone     string `json:"phone" validate:"required,phone"`
}

type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CheckoutRequest struct {
	SessionID string `json:"session_id" validate:"required,sessionid"`
}

type UpdateUserRequest struct {
	Name     string `json:"name,omitempty" validate:"omitempty,max=64"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,phone"`
	Birthday string `json:"birthday,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type UserResponse struct {
	Response
	User *User `json:"user,omitempty"`
}

type CheckoutResponse struct {
	Response
	TransactionID string  `json:"transaction_id,omitempty"`
	TotalAmount   float64 `json:"total_amount"`
}

type Transaction struct {
	ID            string     `json:"id"`
	Date          string     `json:"date"`
	Items         []CartItem `json:"items"`
	TotalQuantity int        `json:"total_quantity"`
	TotalAmount   float64    `json:"total_amount"`
}

type TransactionsResponse struct {
	Response
	TotalTransactions int           `json:"total_transactions"`
	TotalSpent        float64       `json:"total_spent"`
	Transactions      []Transaction `json:"transactions"`
}

type AdminUser struct {
	User
	TotalTransactions int     `json:"total_transactions"`
	TotalSpent        float64 `json:"total_spent"`
}

type AdminUsersResponse struct {
	Response
	Users []AdminUser `json:"users"`
	Count int         `json:"count"`
}

type AdminUserResponse struct {
	Response
	User *AdminUser `json:"user,omitempty"`
}

type Stats struct {
	TotalUsers        int     `json:"total_users"`
	TotalTransactions int     `json:"total_transactions"`
	TotalRevenue      float64 `json:"total_revenue"`
}

type StatsResponse struct {
	Response
	Stats Stats `json:"stats"`
}
