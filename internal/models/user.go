package models

import (
	"strconv"
	"strings"
	"time"
)

// User is a registered submitter. TelegramID doubles as the chat id for private chats.
type User struct {
	TelegramID   int64     `json:"telegram_id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	JobTitle     string    `json:"job_title"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Handle возвращает @username либо числовой id, если ника нет
func (u *User) Handle() string {
	name := strings.TrimPrefix(strings.TrimSpace(u.Username), "@")
	if name == "" {
		return strconv.FormatInt(u.TelegramID, 10)
	}
	return "@" + name
}

// Complete reports whether the user carries every field registration collects.
func (u *User) Complete() bool {
	return u.FullName != "" && u.Email != "" && u.JobTitle != "" && u.Phone != ""
}
