package entity

import "time"

// Account represents a row in the `accounts` table.
type Account struct {
	ID                int64
	Username          string
	PasswordHash      string
	PasswordAlgo      string
	MobileNumber      string
	FirstName         string
	LastName          string
	Email             string
	Status            string // active
	CreatedAt         time.Time
	PasswordUpdatedAt time.Time
}

// PublicAccount is the account owner's own view; it never carries password
// material. Username and mobile number together are the reset factor, so this
// view goes only to the holder of the account's credentials or session.
type PublicAccount struct {
	ID           int64     `json:"id,string"`
	Username     string    `json:"username"`
	MobileNumber string    `json:"mobileNumber"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public returns the caller-safe view of a.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:           a.ID,
		Username:     a.Username,
		MobileNumber: a.MobileNumber,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		CreatedAt:    a.CreatedAt,
	}
}

// Profile is what other callers may see about an account.
type Profile struct {
	ID        int64     `json:"id,string"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		CreatedAt: a.CreatedAt,
	}
}
