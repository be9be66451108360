package domain

import (
	"strings"
	"time"
)

// CallStatus is the lifecycle state of one call leg. Values mirror the
// carrier's wire vocabulary so webhook payloads map without translation.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusCanceled   CallStatus = "canceled"
	CallStatusUnknown    CallStatus = "unknown"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return true
	}
	return false
}

// ParseCallStatus normalizes a raw carrier status string. Unrecognized values
// become Unknown rather than an error so a new carrier status never breaks
// webhook handling.
func ParseCallStatus(raw string) CallStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "initiated":
		return CallStatusQueued
	case "ringing":
		return CallStatusRinging
	case "in-progress", "answered":
		return CallStatusInProgress
	case "completed":
		return CallStatusCompleted
	case "failed":
		return CallStatusFailed
	case "busy":
		return CallStatusBusy
	case "no-answer":
		return CallStatusNoAnswer
	case "canceled":
		return CallStatusCanceled
	}
	return CallStatusUnknown
}

// CallDirection distinguishes who placed the call.
type CallDirection string

const (
	DirectionOutbound CallDirection = "outbound"
	DirectionInbound  CallDirection = "inbound"
)

// Call is the persisted record of one call leg.
type Call struct {
	ID           string        `json:"id" gorm:"column:id;primaryKey"`
	CallID       string        `json:"call_id" gorm:"column:call_id;uniqueIndex"`
	PhoneNumber  string        `json:"phone_number" gorm:"column:phone_number"`
	CallerNumber string        `json:"caller_number" gorm:"column:caller_number"`
	AgentID      string        `json:"agent_id" gorm:"column:agent_id;index"`
	Direction    CallDirection `json:"direction" gorm:"column:direction"`
	Status       CallStatus    `json:"status" gorm:"column:status"`
	Simulated    bool          `json:"simulated" gorm:"column:simulated"`
	RecordingID  string        `json:"recording_id,omitempty" gorm:"column:recording_id"`
	RecordingURL string        `json:"recording_url,omitempty" gorm:"column:recording_url"`
	StartedAt    *time.Time    `json:"started_at,omitempty" gorm:"column:started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty" gorm:"column:ended_at"`
	CreatedAt    time.Time     `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"column:updated_at"`
}

func (Call) TableName() string {
	return "calls"
}

// TranscriptTurn is one utterance in a call's conversation. Turns are
// append-only; Seq orders them within a call.
type TranscriptTurn struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	CallID    string    `json:"call_id" gorm:"column:call_id;index"`
	Seq       int       `json:"seq" gorm:"column:seq"`
	Role      string    `json:"role" gorm:"column:role"`
	Content   string    `json:"content" gorm:"column:content"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (TranscriptTurn) TableName() string {
	return "call_transcript_turns"
}

// CallOptions tunes one outbound call.
type CallOptions struct {
	Record              bool `json:"record"`
	UseFallbackDocument bool `json:"use_fallback_document"`
	TimeoutSeconds      int  `json:"timeout_seconds"`
	MachineDetection    bool `json:"machine_detection"`
}

// DefaultCallOptions are applied when the caller sends none.
func DefaultCallOptions() CallOptions {
	return CallOptions{
		Record:              false,
		UseFallbackDocument: true,
		TimeoutSeconds:      60,
	}
}

// NumberInfo describes one carrier phone number, owned or purchasable.
type NumberInfo struct {
	SID          string  `json:"sid,omitempty"`
	PhoneNumber  string  `json:"phone_number"`
	FriendlyName string  `json:"friendly_name,omitempty"`
	Locality     string  `json:"locality,omitempty"`
	Region       string  `json:"region,omitempty"`
	ISOCountry   string  `json:"iso_country,omitempty"`
	VoiceEnabled bool    `json:"voice_enabled"`
	SMSEnabled   bool    `json:"sms_enabled"`
	MonthlyPrice float64 `json:"monthly_price,omitempty"`
}

// CallSnapshot is the carrier's current view of one call leg.
type CallSnapshot struct {
	CallID    string     `json:"call_id"`
	To        string     `json:"to"`
	From      string     `json:"from"`
	Status    CallStatus `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Duration  int        `json:"duration,omitempty"`
}

// MessageReceipt acknowledges one outbound text message.
type MessageReceipt struct {
	MessageID string    `json:"message_id"`
	To        string    `json:"to"`
	From      string    `json:"from"`
	Status    string    `json:"status"`
	SentAt    time.Time `json:"sent_at"`
}

// CredentialSource names where a credential pair came from. Logged on every
// resolution so operators can tell which source won.
type CredentialSource string

const (
	SourceRequestOverride CredentialSource = "request-override"
	SourceEnvironment     CredentialSource = "environment"
	SourcePersistedConfig CredentialSource = "persisted-config"
	SourceSimulated       CredentialSource = "simulated"
)

// CredentialSet is a resolved carrier credential pair. Secret never appears in
// logs or JSON.
type CredentialSet struct {
	AccountID    string           `json:"account_id"`
	Secret       string           `json:"-"`
	CallerNumber string           `json:"caller_number,omitempty"`
	Source       CredentialSource `json:"source"`
}

// Simulated reports whether this credential set selects the in-process
// carrier instead of the live one.
func (c CredentialSet) Simulated() bool {
	return c.Source == SourceSimulated
}
