package types

import "time"

type ScanRequest struct {
	StudentID    string `json:"student_id"`
	CredentialID string `json:"rfid_uid"`
	Action       string `json:"action,omitempty"` // "" = entry
}

type AccessEvent struct {
	ID           int64     `json:"id"`
	StudentID    string    `json:"student_id"`
	CredentialID string    `json:"credential_id"`
	Action       Action    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
}

// ScanResult is the outcome of an accepted scan. Bound is true only for the
// call that performed the first-use binding.
type ScanResult struct {
	Event AccessEvent
	Bound bool
}

type ScanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type EventsResponse struct {
	StudentID string        `json:"student_id"`
	Events    []AccessEvent `json:"events"`
}
