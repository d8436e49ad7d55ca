package models

import "time"

const ParseModeHTML = "HTML"

// Moscow is the fixed business timezone (UTC+3, no DST).
var Moscow = time.FixedZone("MSK", 3*60*60)

const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "02.01.2006"
)

const (
	// DefaultStateTTL время жизни незавершённого диалога
	DefaultStateTTL = 24 * time.Hour

	// RegistrationCacheTTL время жизни положительного признака регистрации
	RegistrationCacheTTL = time.Hour

	// InitiatorCacheTTL время жизни данных инициатора
	InitiatorCacheTTL = 5 * time.Minute

	// ConfigOptionsCacheTTL время жизни списков с листа Config
	ConfigOptionsCacheTTL = 5 * time.Minute

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = time.Minute

	// ActivationCutoffHour после этого часа четверга активация переносится на следующую неделю
	ActivationCutoffHour = 22

	// InactiveThresholdDays порог неактивности для напоминаний
	InactiveThresholdDays = 30

	// MaxShortField и MaxEmailField ограничения длины после очистки
	MaxShortField = 100
	MaxEmailField = 255
)

// Activity events written to the local activity log.
const (
	EventRegistered  = "registered"
	EventSubmitted   = "submitted"
	EventApproved    = "approved"
	EventRejected    = "rejected"
	EventReminded    = "reminded"
	EventJobPrefix   = "job:"
	EventMessage     = "message"
	EventSyncedLater = "synced_later"
)
