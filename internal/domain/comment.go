package domain

import "time"

type Comment struct {
	ID        string
	BridgeID  string
	UserID    string
	UserEmail string
	Content   string
	Images    []string
	CreatedAt time.Time
}

type Rating struct {
	ID       string
	BridgeID string
	UserID   string

	// Sub-scores in [1,5]. Zero means "not set" and never reaches the store.
	Hygiene       int
	Discretion    int
	Accessibility int

	CreatedAt time.Time
}
