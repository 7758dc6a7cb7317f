package models

import "gorm.io/gorm"

// User is an agent-managed wallet.
type User struct {
	gorm.Model
	Name     string
	Address  string `gorm:"uniqueIndex;not null"`
	Strategy string `gorm:"not null"`
}
