package users

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the read-only view of the identity directory the payment
// pipeline needs for contact metadata.
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `json:"name"`
	Lastname  string `json:"lastname"`
	Email     string `gorm:"not null;uniqueIndex:idx_users_email" json:"email"`
	Role      string `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) FullName() string {
	if u.Lastname == "" {
		return u.Name
	}
	return u.Name + " " + u.Lastname
}
