package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdSearchNow CommandType = "search_now"
	CmdPrune     CommandType = "prune"
	CmdPause     CommandType = "pause"
	CmdResume    CommandType = "resume"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	RetentionDays int `json:"retention_days,omitempty"`
}
