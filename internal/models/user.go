package models

import "time"

// User represents a registered customer account.
type User struct {
	BaseModel
	Name            string     `json:"name"`
	Email           string     `gorm:"uniqueIndex" json:"email"`
	PasswordHash    string     `json:"-"`
	Phone           string     `json:"phone"`
	Address         string     `json:"address"`
	City            string     `json:"city"`
	State           string     `json:"state"`
	PostalCode      string     `json:"postal_code"`
	Country         string     `json:"country"`
	DateOfBirth     *time.Time `json:"date_of_birth"`
	Gender          string     `json:"gender"`
	MarketingEmails bool       `json:"marketing_emails"`
	Orders          []Order    `json:"orders,omitempty"`
	Reviews         []Review   `json:"reviews,omitempty"`
}
