package database

import "time"

// DefaultStateTTL bounds how long an abandoned registration conversation survives.
const DefaultStateTTL = 30 * time.Minute

// RegistrationStep is the position of a user in the two-step registration conversation.
type RegistrationStep string

const (
	StepAwaitingName  RegistrationStep = "awaiting_name"
	StepAwaitingPhone RegistrationStep = "awaiting_phone"
)

// Valid reports whether s is a known step.
func (s RegistrationStep) Valid() bool {
	return s == StepAwaitingName || s == StepAwaitingPhone
}

// RegistrationState is the per-user conversation state. ExpiresAt is assigned by the store on save.
type RegistrationState struct {
	TelegramID int64            `json:"telegram_id"`
	Step       RegistrationStep `json:"step"`
	FullName   string           `json:"full_name,omitempty"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

// stateRow mirrors the registration_states table; timestamps are unix seconds.
type stateRow struct {
	TelegramID int64  `db:"telegram_id"`
	Step       string `db:"step"`
	FullName   string `db:"full_name"`
	ExpiresAt  int64  `db:"expires_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r stateRow) toState() *RegistrationState {
	return &RegistrationState{
		TelegramID: r.TelegramID,
		Step:       RegistrationStep(r.Step),
		FullName:   r.FullName,
		ExpiresAt:  time.Unix(r.ExpiresAt, 0).UTC(),
	}
}
