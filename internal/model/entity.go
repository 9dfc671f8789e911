package model

import (
	"encoding/json"
	"time"
)

// DocumentRow is the MySQL representation of one stored document.
type DocumentRow struct {
	Type      string    `gorm:"primaryKey;size:32" json:"type"`
	Body      string    `gorm:"type:longtext" json:"body"`
	Revision  string    `gorm:"size:64" json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DocumentRow) TableName() string { return "documents" }

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Users is the "users" document, keyed by username.
type Users map[string]User

// BuiltinUsers are accepted at login when the users document has no entry.
func BuiltinUsers() Users {
	return Users{
		"admin": {ID: 1, Username: "admin", Role: RoleAdmin},
		"user":  {ID: 2, Username: "user", Role: RoleUser},
	}
}

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type GlobalSettings struct {
	Theme string `json:"theme"`
	// LastRefreshTime is a Unix timestamp in milliseconds.
	LastRefreshTime int64 `json:"lastRefreshTime"`
}

// AdminData is the "admin-data" document.
type AdminData struct {
	CurrentUser    *User           `json:"currentUser"`
	GlobalSettings *GlobalSettings `json:"globalSettings,omitempty"`
}

func DefaultAdminData() AdminData {
	return AdminData{GlobalSettings: &GlobalSettings{Theme: ThemeLight}}
}

// CacheEntry wraps one widget payload inside the "daily-data" document.
// News entries are stored as bare arrays instead.
type CacheEntry struct {
	Content   json.RawMessage `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}
