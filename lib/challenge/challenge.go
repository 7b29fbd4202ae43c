package challenge

import "time"

// Challenge is a single issued puzzle as the store keeps it.
type Challenge struct {
	ID       string    `json:"id"`       // UUID identifying the challenge
	Answer   string    `json:"answer"`   // The expected answer, never sent to the client
	IssuedAt time.Time `json:"issuedAt"` // When the challenge was issued
	Consumed bool      `json:"consumed"` // Set on the first verify attempt
}
