package auth

import (
	"encoding/json"
	"time"
)

// User учетная запись оператора из identity-сервиса
type User struct {
	ID              int        `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	Role            string     `json:"role"`
}

// ToJSON сериализует пользователя для кеширования
func (u *User) ToJSON() ([]byte, error) {
	return json.Marshal(u)
}

// UserFromJSON десериализует пользователя из кеша
func UserFromJSON(data []byte) (*User, error) {
	var user User
	err := json.Unmarshal(data, &user)
	return &user, err
}

// IsOperator проверяет, может ли пользователь менять политики целей
func (u *User) IsOperator() bool {
	return u.Role == "operator" || u.Role == "admin"
}

// IsAdmin проверяет административную роль
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
