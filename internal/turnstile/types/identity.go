package types

import "time"

type RegisterRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
}

// Identity is one registrant. CredentialID is empty until the first
// successful scan binds it.
type Identity struct {
	StudentID    string     `json:"student_id"`
	Name         string     `json:"name"`
	CredentialID string     `json:"credential_id,omitempty"`
	BoundAt      *time.Time `json:"bound_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (i Identity) Bound() bool { return i.CredentialID != "" }
