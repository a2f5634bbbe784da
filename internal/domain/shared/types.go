package shared

import "github.com/google/uuid"

// CloseResult represents the outcome of an ended session
type CloseResult struct {
	SessionID  uuid.UUID  `json:"session_id"`
	ListingID  uuid.UUID  `json:"listing_id"`
	WinnerID   *uuid.UUID `json:"winner_id,omitempty"`
	WinnerName string     `json:"winner_name,omitempty"`
	FinalPrice *int64     `json:"final_price,omitempty"`
	FinalSeq   uint64     `json:"final_seq"`
	Status     string     `json:"status"`
}
