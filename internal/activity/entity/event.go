package entity

import "time"

// Action names an account-lifecycle occurrence.
type Action string

const (
	ActionRegistration  Action = "USER_REGISTRATION"
	ActionLogin         Action = "USER_LOGIN"
	ActionLoginFailed   Action = "LOGIN_FAILED"
	ActionPasswordReset Action = "PASSWORD_RESET"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionRegistration, ActionLogin, ActionLoginFailed, ActionPasswordReset:
		return true
	}
	return false
}

// Event is an immutable audit record. AccountID references an account without owning it.
type Event struct {
	ID        int64     `json:"id,string"`
	AccountID int64     `json:"accountId,string"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ipAddress,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
