package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	ListingActive = "active"
	ListingClosed = "closed"
)

// Listing is a marketplace entry published by a user, optionally pointing at a token contract.
type Listing struct {
	ID              int     `json:"id"`
	UserID          int     `json:"user_id" gorm:"notNull;index"`
	User            *User   `json:"user,omitempty"`
	Title           string  `json:"title" gorm:"notNull;size:400"`
	Description     string  `json:"description" gorm:"size:4000"`
	Category        string  `json:"category" gorm:"size:30;index"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency" gorm:"size:10"`
	ContractAddress string  `json:"contract_address" gorm:"size:42"`
	Status          string  `json:"status" gorm:"notNull;size:10;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// ListingFilter narrows down the listings returned by ListingService.Find.
type ListingFilter struct {
	Category string
	Status   string
	UserID   int
	Page
}

// ListingService is a set of methods to manipulate and work with the Listing model.
type ListingService interface {
	ByID(ctx context.Context, id int) (*Listing, error)
	Find(ctx context.Context, filter ListingFilter) ([]Listing, error)
	Create(ctx context.Context, listing *Listing) error
	Update(ctx context.Context, listing *Listing) error
	Delete(ctx context.Context, listing *Listing) error
}
