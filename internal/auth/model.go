package auth

import "time"

type UserType string

const (
	UserTypeClient       UserType = "client"
	UserTypeAdmin        UserType = "admin"
	UserTypeCollaborator UserType = "collaborator"
)

func (t UserType) Valid() bool {
	switch t {
	case UserTypeClient, UserTypeAdmin, UserTypeCollaborator:
		return true
	}
	return false
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Avatar       *string
	Type         UserType
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the projection returned to callers: the same record with
// the password hash stripped.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    *string   `json:"avatar"`
	Type      UserType  `json:"user_type"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.Avatar,
		Type:      u.Type,
		Disabled:  u.Disabled,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserPatch carries partial updates; nil fields are left untouched.
type UserPatch struct {
	Email    *string
	Name     *string
	Avatar   *string
	Type     *UserType
	Disabled *bool
}

type ListUsersQuery struct {
	Q        string
	Page     int
	PageSize int
	Active   *bool
	Type     UserType
}

type UserListItem struct {
	PublicUser
	LastLoginAt *time.Time `json:"last_login_at"`
}

type UserPage struct {
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Results  []UserListItem `json:"results"`
}

type UserStats struct {
	TotalUsers    int `json:"totalUsers"`
	ActiveUsers   int `json:"activeUsers"`
	AdminUsers    int `json:"adminUsers"`
	DisabledUsers int `json:"disabledUsers"`
}

type CreateUserInput struct {
	Email    string
	Password string
	Name     *string
	Avatar   *string
	Type     *UserType
	Disabled *bool
}
