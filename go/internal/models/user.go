package models

// UserRole is the role carried by an authenticated user
type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleCoach  UserRole = "coach"
	UserRolePlayer UserRole = "player"
	UserRoleFan    UserRole = "fan"
)

// User represents an authenticated user as seen by the live game service
type User struct {
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
	Role UserRole `json:"role"`
}

// CanEdit reports whether the user may change the score of a live game
func (u User) CanEdit() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleCoach
}
