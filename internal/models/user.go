package models

import (
	"time"

	"gorm.io/gorm"
)

// UserType represents the role a user plays on the platform
type UserType string

const (
	UserTypeTeacher UserType = "teacher"
	UserTypeStudent UserType = "student"
)

// User represents a user in the system. Identity is established upstream by
// Firebase; this row is the local profile the engines reference by id.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FirebaseUID string   `gorm:"type:varchar(128);uniqueIndex" json:"firebase_uid"`
	Name        string   `gorm:"type:varchar(255)" json:"name"`
	Phone       string   `gorm:"type:varchar(50)" json:"phone"`
	Email       string   `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	UserType    UserType `gorm:"type:varchar(20);default:'student'" json:"user_type"`
	Timezone    string   `gorm:"type:varchar(64);default:'Asia/Dhaka'" json:"timezone"`

	// Relationships
	Memberships []RoutineMember `gorm:"foreignKey:StudentID" json:"memberships,omitempty"`
}

// IsTeacher reports whether the user may act as a session provider
func (u *User) IsTeacher() bool {
	return u.UserType == UserTypeTeacher
}
