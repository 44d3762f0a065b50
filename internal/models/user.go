package models

import "time"

// UserRole represents the coarse account roles recognised by the API.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// User represents an application user stored in the users table. Students
// additionally carry their grade/class placement, which the access resolver
// matches scope predicates against.
type User struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	FullName      *string   `db:"full_name" json:"full_name,omitempty"`
	Role          UserRole  `db:"role" json:"role"`
	Grade         *int      `db:"grade" json:"grade,omitempty"`
	ClassSection  *int      `db:"class_section" json:"class_section,omitempty"`
	NumberInClass *int      `db:"number_in_class" json:"number_in_class,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role         *UserRole
	Grade        *int
	ClassSection *int
	Search       string
	Page         int
	PageSize     int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
