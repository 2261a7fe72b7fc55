package model

import "time"

// UsageEvent records one protected call made with an API key.
type UsageEvent struct {
	ID             uint      `json:"id"`
	KeyID          string    `json:"keyId"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs *int64    `json:"responseTime,omitempty"`
	Success        bool      `json:"success"`
}
