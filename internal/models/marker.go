package models

import "time"

type MarkerType string

const (
	MarkerTypeShelter        MarkerType = "shelter"
	MarkerTypeGatheringPoint MarkerType = "gathering_point"
	MarkerTypeMedical        MarkerType = "medical"
	MarkerTypeUnderground    MarkerType = "underground"
)

func (t MarkerType) Valid() bool {
	switch t {
	case MarkerTypeShelter, MarkerTypeGatheringPoint, MarkerTypeMedical, MarkerTypeUnderground:
		return true
	}
	return false
}

type VerificationStatus string

const (
	StatusVerified    VerificationStatus = "verified"
	StatusAIApproved  VerificationStatus = "ai_approved"
	StatusPending     VerificationStatus = "pending" // legacy, never produced
	StatusPendingSync VerificationStatus = "pending_sync"
)

const MaxDescriptionLength = 200

type Marker struct {
	ID                    string             `json:"id"`
	Name                  string             `json:"name"`
	Description           string             `json:"description"`
	Position              Coordinates        `json:"position"`
	Type                  MarkerType         `json:"type"`
	CreatedAt             time.Time          `json:"createdAt"`
	VerificationStatus    VerificationStatus `json:"verificationStatus"`
	AuthorName            string             `json:"authorName,omitempty"`
	AIVerificationDetails string             `json:"aiVerificationDetails,omitempty"`
	Revision              uint64             `json:"revision"`
}

func (m *Marker) IsPendingSync() bool {
	return m.VerificationStatus == StatusPendingSync
}
