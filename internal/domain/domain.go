package domain

import "deliberation/internal/vector"

type Character struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Interests         string           `json:"interests,omitempty"`
	UtilityCriteria   string           `json:"utility_criteria,omitempty"`
	Reading           string           `json:"reading,omitempty"`
	StartingResources string           `json:"starting_resources,omitempty"`
	Resources         vector.Resources `json:"resources"`
	CreatedAt         string           `json:"created_at" format:"date-time"`
}

type Project struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	RequiredResources string  `json:"required_resources"`
	Outcomes          string  `json:"outcomes"`
	Completed         bool    `json:"completed"`
	CompletedAt       *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
}

// Requirement parses the stored requirement spec.
func (p Project) Requirement() vector.Resources {
	return vector.ParseResources(p.RequiredResources)
}

// Outcome parses the stored outcome spec.
func (p Project) Outcome() vector.Outcome {
	return vector.ParseOutcome(p.Outcomes)
}

type Metric struct {
	Kind      string `json:"kind"`
	Value     int    `json:"value"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Settlement records a committed contribution round.
type Settlement struct {
	ID            string                      `json:"id"`
	ProjectID     string                      `json:"project_id"`
	ActorID       string                      `json:"actor_id"`
	Contributions map[string]vector.Resources `json:"contributions"`
	Total         vector.Resources            `json:"total"`
	Outcome       map[string]int              `json:"outcome"`
	CreatedAt     string                      `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
