package database

import "time"

// Message is one stored chat turn. Records are immutable once written.
type Message struct {
	ID                       int64     `db:"id"                        json:"id"`
	UserID                   string    `db:"user_id"                   json:"user_id"`
	MessageText              string    `db:"message_text"              json:"message_text"`
	BotResponse              string    `db:"bot_response"              json:"bot_response"`
	MessageType              string    `db:"message_type"              json:"message_type"`
	InteractionRounds        int       `db:"interaction_rounds"        json:"interaction_rounds"`
	ConstructiveContribution bool      `db:"constructive_contribution" json:"constructive_contribution"`
	Timestamp                time.Time `db:"timestamp"                 json:"timestamp"`
}

// Payload is a caller-supplied message before validation and normalization.
// A nil Timestamp is assigned by the server.
type Payload struct {
	UserID                   string     `json:"user_id"                   validate:"required"`
	MessageText              string     `json:"message_text"              validate:"required_without=BotResponse"`
	BotResponse              string     `json:"bot_response"`
	MessageType              string     `json:"message_type"`
	InteractionRounds        int        `json:"interaction_rounds"        validate:"min=0"`
	ConstructiveContribution bool       `json:"constructive_contribution"`
	Timestamp                *time.Time `json:"timestamp,omitempty"`
}
