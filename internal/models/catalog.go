package models

import "time"

// Category groups products for browsing.
type Category struct {
	BaseModel
	Name         string    `json:"name"`
	Slug         string    `gorm:"uniqueIndex" json:"slug"`
	Description  string    `json:"description"`
	Image        string    `json:"image"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	DisplayOrder int       `json:"display_order"`
	Products     []Product `json:"products,omitempty"`
}

// NewsletterSubscriber tracks marketing list membership.
type NewsletterSubscriber struct {
	BaseModel
	Email            string     `gorm:"uniqueIndex" json:"email"`
	UnsubscribeToken string     `gorm:"uniqueIndex" json:"-"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	SubscribedAt     time.Time  `json:"subscribed_at"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at"`
}
