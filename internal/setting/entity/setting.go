package entity

import (
	"encoding/json"
	"time"
)

// MaintenanceKey holds a MaintenanceMode document.
const MaintenanceKey = "maintenance_mode"

// Setting is a site-wide configuration record. Value is any JSON document.
type Setting struct {
	Key       string          `json:"key" db:"key"`
	Category  string          `json:"category" db:"category"`
	Value     json.RawMessage `json:"value" db:"value"`
	Version   int             `json:"version" db:"version"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// MaintenanceMode is the value stored under MaintenanceKey.
type MaintenanceMode struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message,omitempty"`
}
