package models

// Quest is a single gamified task worth XP.
type Quest struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	XP        int    `json:"xp"`
	Completed bool   `json:"completed"`
}

// Objective is a free-form daily objective.
type Objective struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"createdAt"`
}

// UserProfile is the entire persisted state for one user: accumulated XP
// plus the ordered quest and objective lists. Serialized as a single JSON
// file per user.
type UserProfile struct {
	XP         int         `json:"xp"`
	Quests     []Quest     `json:"quests"`
	QuestsDate *string     `json:"questsDate"`
	Objectives []Objective `json:"objectives"`
	UpdatedAt  string      `json:"updatedAt,omitempty"`
}

// Normalize replaces nil slices with empty ones so the JSON wire form is
// always [] rather than null, and clamps XP to non-negative.
func (p *UserProfile) Normalize() {
	if p.Quests == nil {
		p.Quests = []Quest{}
	}
	if p.Objectives == nil {
		p.Objectives = []Objective{}
	}
	if p.XP < 0 {
		p.XP = 0
	}
}
