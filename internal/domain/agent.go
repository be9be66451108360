package domain

import (
	"time"
)

// Agent is an AI calling persona. The stored PhoneNumber is informational
// only: outbound caller ID always comes from a carrier-owned number.
type Agent struct {
	ID             string    `json:"id" gorm:"column:id;primaryKey"`
	Name           string    `json:"name" gorm:"column:name"`
	Description    string    `json:"description" gorm:"column:description"`
	Persona        string    `json:"persona" gorm:"column:persona"`
	InitialMessage string    `json:"initial_message" gorm:"column:initial_message"`
	PhoneNumber    string    `json:"phone_number" gorm:"column:phone_number"`
	VoiceID        string    `json:"voice_id" gorm:"column:voice_id"`
	Active         bool      `json:"active" gorm:"column:active"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// Greeting returns the first thing the agent says on a call.
func (a *Agent) Greeting() string {
	if a.InitialMessage != "" {
		return a.InitialMessage
	}
	return "Hello, how can I help you today?"
}

// HasVoiceIdentity reports whether synthesized audio should be preferred over
// the carrier's built-in voice for this agent.
func (a *Agent) HasVoiceIdentity() bool {
	return a.VoiceID != ""
}

// CarrierConfig is the externally-owned persisted credential record, read as
// the third source in the credential fallback chain.
type CarrierConfig struct {
	ID           int64     `json:"id" gorm:"column:id;primaryKey"`
	AccountSID   string    `json:"account_sid" gorm:"column:account_sid"`
	AuthToken    string    `json:"-" gorm:"column:auth_token"`
	CallerNumber string    `json:"caller_number" gorm:"column:caller_number"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (CarrierConfig) TableName() string {
	return "carrier_config"
}
