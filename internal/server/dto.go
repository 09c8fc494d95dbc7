package server

import (
	"deliberation/internal/domain"
	"deliberation/internal/engine"
	"deliberation/internal/vector"
)

// Request payloads

type LoginRequest struct {
	Name string `json:"name" minLength:"1" example:"Character 1"`
}

// ResourcesInput is one character's contribution. Omitted kinds are zero.
type ResourcesInput struct {
	Time  int `json:"time,omitempty"`
	Money int `json:"money,omitempty"`
	Labor int `json:"labor,omitempty"`
}

func (r ResourcesInput) vector() vector.Resources {
	return vector.Resources{Time: r.Time, Money: r.Money, Labor: r.Labor}
}

type SettleRequest struct {
	ActorID       string                    `json:"actor_id,omitempty" example:"character-1"`
	Contributions map[string]ResourcesInput `json:"contributions" doc:"Contribution per character id"`
}

func (r SettleRequest) contributions() engine.Contributions {
	out := make(engine.Contributions, len(r.Contributions))
	for id, res := range r.Contributions {
		out[id] = res.vector()
	}
	return out
}

// Response payloads

type CharacterResponse struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Interests         string           `json:"interests,omitempty"`
	UtilityCriteria   string           `json:"utility_criteria,omitempty"`
	Reading           string           `json:"reading,omitempty"`
	StartingResources string           `json:"starting_resources,omitempty"`
	Resources         vector.Resources `json:"resources"`
	ResourcesText     string           `json:"resources_text" example:"Time: 3, Money: 2, Labor: 1"`
}

type ProjectResponse struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	RequiredResources string           `json:"required_resources"`
	Requirement       vector.Resources `json:"requirement"`
	Outcomes          string           `json:"outcomes"`
	Outcome           map[string]int   `json:"outcome"`
	Completed         bool             `json:"completed"`
	CompletedAt       *string          `json:"completed_at,omitempty"`
}

type SettlementResponse struct {
	Verdict    engine.Verdict     `json:"verdict" enum:"SUFFICIENT,NOT_ENOUGH,TOO_MUCH"`
	Message    string             `json:"message"`
	Project    ProjectResponse    `json:"project"`
	Settlement *domain.Settlement `json:"settlement,omitempty"`
}

type MetricResponse struct {
	Kind      string `json:"kind"`
	Label     string `json:"label" example:"Environment"`
	Value     int    `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

func characterResponse(c domain.Character) CharacterResponse {
	return CharacterResponse{
		ID:                c.ID,
		Name:              c.Name,
		Interests:         c.Interests,
		UtilityCriteria:   c.UtilityCriteria,
		Reading:           c.Reading,
		StartingResources: c.StartingResources,
		Resources:         c.Resources,
		ResourcesText:     vector.FormatResources(c.Resources),
	}
}

func mapCharacters(items []domain.Character) []CharacterResponse {
	out := make([]CharacterResponse, 0, len(items))
	for _, c := range items {
		out = append(out, characterResponse(c))
	}
	return out
}

func projectResponse(p domain.Project) ProjectResponse {
	outcome := map[string]int{}
	for m, v := range p.Outcome() {
		outcome[string(m)] = v
	}
	return ProjectResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		RequiredResources: p.RequiredResources,
		Requirement:       p.Requirement(),
		Outcomes:          p.Outcomes,
		Outcome:           outcome,
		Completed:         p.Completed,
		CompletedAt:       p.CompletedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func settlementResponse(res engine.SettlementResult) SettlementResponse {
	return SettlementResponse{
		Verdict:    res.Verdict,
		Message:    res.Message,
		Project:    projectResponse(res.Project),
		Settlement: res.Settlement,
	}
}

func mapMetrics(items []domain.Metric) []MetricResponse {
	out := make([]MetricResponse, 0, len(items))
	for _, m := range items {
		out = append(out, MetricResponse{
			Kind:      m.Kind,
			Label:     vector.Title(m.Kind),
			Value:     m.Value,
			UpdatedAt: m.UpdatedAt,
		})
	}
	return out
}
