package service

import (
	"errors"
	"fmt"
)

// ErrValidation marks caller-side input problems. The field-specific errors
// below wrap it, so errors.Is(err, ErrValidation) matches all of them.
var ErrValidation = errors.New("invalid request")

var (
	ErrInvalidStudentID    = fmt.Errorf("%w: student_id is required (max %d characters)", ErrValidation, MaxStudentIDLen)
	ErrInvalidName         = fmt.Errorf("%w: name is required (max %d characters)", ErrValidation, MaxNameLen)
	ErrInvalidCredentialID = fmt.Errorf("%w: rfid_uid is required (max %d characters)", ErrValidation, MaxCredentialIDLen)
	ErrInvalidAction       = fmt.Errorf("%w: action must be entry or exit", ErrValidation)
)

var (
	ErrAlreadyRegistered  = errors.New("student_id already registered")
	ErrRegistrationFailed = errors.New("registration failed")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrCredentialMismatch = errors.New("credential does not match the registered one")
	ErrCredentialInUse    = errors.New("credential is bound to another identity")
)

const (
	MaxStudentIDLen    = 20
	MaxNameLen         = 50
	MaxCredentialIDLen = 50
)
