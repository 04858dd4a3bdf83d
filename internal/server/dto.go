package server

import (
	"lifeswap/internal/domain"
	"lifeswap/internal/engine"
)

type ImportRequest struct {
	// Document is the experience document, YAML or JSON.
	Document string `json:"document" minLength:"1"`
}

type ValidationResponse struct {
	ExperienceID string         `json:"experience_id"`
	Valid        bool           `json:"valid"`
	Issues       []domain.Issue `json:"issues"`
}

type ListExperiencesResponse struct {
	Items []domain.Experience `json:"items"`
}

type ScenariosResponse struct {
	Items []domain.Scenario `json:"items"`
}

type ValuesResponse struct {
	Items []string `json:"items"`
}

type ChoiceRequest struct {
	ChoiceID       string `json:"choice_id" minLength:"1"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
}

type PositionResponse struct {
	LedgerID  string          `json:"ledger_id"`
	Outcome   string          `json:"outcome"`
	Scenario  domain.Scenario `json:"scenario"`
	Available []domain.Choice `json:"available_choices"`
}

type ChoicesResponse struct {
	Items []domain.Choice `json:"items"`
}

type ListLedgersResponse struct {
	Items []domain.Ledger `json:"items"`
}

type EventsResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor *int64         `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	Source string   `json:"source"`
}

type DevLoginRequest struct {
	UserID string   `json:"user_id" minLength:"1"`
	Roles  []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type APIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type APIKeysResponse struct {
	Items []domain.APIKey `json:"items"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func validationResponse(id string, issues []domain.Issue) ValidationResponse {
	if issues == nil {
		issues = []domain.Issue{}
	}
	return ValidationResponse{ExperienceID: id, Valid: len(issues) == 0, Issues: issues}
}

func importResponse(res engine.ImportResult) engine.ImportResult {
	if res.Issues == nil {
		res.Issues = []domain.Issue{}
	}
	return res
}

func choicesOrEmpty(cs []domain.Choice) []domain.Choice {
	if cs == nil {
		return []domain.Choice{}
	}
	return cs
}

func ledgersOrEmpty(ls []domain.Ledger) []domain.Ledger {
	if ls == nil {
		return []domain.Ledger{}
	}
	return ls
}
