package identity

import "github.com/google/uuid"

// Identity is the durable user reference resolved from a credential. It never
// carries the password hash.
type Identity struct {
	ID       uuid.UUID `json:"_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// account is the stored row including the hash; it stays inside this package.
type account struct {
	Identity
	Password string
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	User        Identity `json:"user"`
}
