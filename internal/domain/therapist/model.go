package therapist

import "time"

// Therapist is an account that owns protocols. Email doubles as the login
// name.
type Therapist struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
