package models

import "time"

type PublicMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Urgent    bool      `json:"urgent"`
	Verified  bool      `json:"verified"`
	Timestamp time.Time `json:"timestamp"`
}
