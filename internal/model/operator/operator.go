package operator

import "context"

// Operator is a POS-integration account allowed to submit checks and
// redemptions through the API. Logins are stored hashed, same as passwords.
type Operator struct {
	ID           string `json:"id"`
	LoginHash    string `json:"login_hash"`
	PasswordHash string `json:"password_hash"`
}

type Repository interface {
	Create(ctx context.Context, op *Operator) error
	Exists(ctx context.Context, loginHash string) bool
	FindByLogin(ctx context.Context, loginHash string) (Operator, error)
	FindByID(ctx context.Context, id string) (Operator, error)
}
