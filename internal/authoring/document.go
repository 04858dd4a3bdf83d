// Package authoring turns experience documents written by content authors into
// domain entities. Documents are YAML; JSON is accepted as well.
package authoring

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"lifeswap/internal/domain"
)

type Document struct {
	ID                 string     `yaml:"id"`
	Title              string     `yaml:"title"`
	Description        string     `yaml:"description"`
	Category           string     `yaml:"category"`
	Region             string     `yaml:"region"`
	Culture            string     `yaml:"culture"`
	Difficulty         string     `yaml:"difficulty"`
	EstimatedDuration  int        `yaml:"estimated_duration"`
	CulturalContext    string     `yaml:"cultural_context"`
	LearningObjectives []string   `yaml:"learning_objectives"`
	Tags               []string   `yaml:"tags"`
	Featured           bool       `yaml:"featured"`
	ScoringPolicy      string     `yaml:"scoring_policy"`
	MaxSteps           int        `yaml:"max_steps"`
	Scenarios          []Scenario `yaml:"scenarios"`
}

type Scenario struct {
	ID            string           `yaml:"id"`
	Title         string           `yaml:"title"`
	Content       string           `yaml:"content"`
	Type          string           `yaml:"type"`
	Parent        string           `yaml:"parent"`
	Terminal      bool             `yaml:"terminal"`
	PointsAwarded int              `yaml:"points_awarded"`
	TimeLimit     *int             `yaml:"time_limit"`
	Condition     domain.Condition `yaml:"condition"`
	ImageURL      string           `yaml:"image_url"`
	AudioURL      string           `yaml:"audio_url"`
	Choices       []Choice         `yaml:"choices"`
}

type Choice struct {
	ID           string `yaml:"id"`
	Text         string `yaml:"text"`
	Next         string `yaml:"next"`
	Consequence  string `yaml:"consequence"`
	PointsImpact int    `yaml:"points_impact"`
	Category     string `yaml:"category"`
}

// Bundle is the decoded form of a document, ready to be stored as a draft.
type Bundle struct {
	Experience domain.Experience
	Scenarios  []domain.Scenario
	Choices    []domain.Choice
}

var difficulties = map[string]bool{"": true, "beginner": true, "intermediate": true, "advanced": true}

// Parse decodes a document. Unknown fields are rejected so typos surface at import.
// Structural checks are left to the graph validator.
func Parse(data []byte) (Bundle, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Bundle{}, fmt.Errorf("empty document: %w", domain.ErrInvalidInput)
		}
		return Bundle{}, fmt.Errorf("decode document: %v: %w", err, domain.ErrInvalidInput)
	}
	return doc.Bundle()
}

func (d Document) Bundle() (Bundle, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return Bundle{}, fmt.Errorf("experience id is required: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(d.Title) == "" {
		return Bundle{}, fmt.Errorf("experience %s: title is required: %w", id, domain.ErrInvalidInput)
	}
	if !difficulties[d.Difficulty] {
		return Bundle{}, fmt.Errorf("experience %s: unknown difficulty %q: %w", id, d.Difficulty, domain.ErrInvalidInput)
	}
	if d.EstimatedDuration < 0 || d.MaxSteps < 0 {
		return Bundle{}, fmt.Errorf("experience %s: durations and step limits must not be negative: %w", id, domain.ErrInvalidInput)
	}
	b := Bundle{Experience: domain.Experience{
		ID:                 id,
		Title:              d.Title,
		Description:        d.Description,
		Category:           d.Category,
		Region:             d.Region,
		Culture:            d.Culture,
		Difficulty:         d.Difficulty,
		EstimatedDuration:  d.EstimatedDuration,
		CulturalContext:    d.CulturalContext,
		LearningObjectives: nonNil(d.LearningObjectives),
		Tags:               nonNil(d.Tags),
		Featured:           d.Featured,
		Status:             domain.ExperienceDraft,
		ScoringPolicy:      d.ScoringPolicy,
		MaxSteps:           d.MaxSteps,
	}}
	for i, s := range d.Scenarios {
		sid := strings.TrimSpace(s.ID)
		if sid == "" {
			return Bundle{}, fmt.Errorf("scenario #%d: id is required: %w", i+1, domain.ErrInvalidInput)
		}
		typ := s.Type
		if typ == "" {
			typ = domain.ScenarioInfo
			if len(s.Choices) > 0 {
				typ = domain.ScenarioDecision
			}
		}
		sc := domain.Scenario{
			ID:            sid,
			ExperienceID:  id,
			Title:         s.Title,
			Content:       s.Content,
			Type:          typ,
			OrderIndex:    i,
			Terminal:      s.Terminal,
			PointsAwarded: s.PointsAwarded,
			TimeLimit:     s.TimeLimit,
			Condition:     s.Condition,
			ImageURL:      s.ImageURL,
			AudioURL:      s.AudioURL,
		}
		if sc.Title == "" {
			sc.Title = sid
		}
		if p := strings.TrimSpace(s.Parent); p != "" {
			sc.ParentID = &p
		}
		b.Scenarios = append(b.Scenarios, sc)
		for j, c := range s.Choices {
			cid := strings.TrimSpace(c.ID)
			if cid == "" {
				cid = fmt.Sprintf("%s.%d", sid, j+1)
			}
			if strings.TrimSpace(c.Text) == "" {
				return Bundle{}, fmt.Errorf("choice %s: text is required: %w", cid, domain.ErrInvalidInput)
			}
			ch := domain.Choice{
				ID:           cid,
				ScenarioID:   sid,
				Text:         c.Text,
				Consequence:  c.Consequence,
				PointsImpact: c.PointsImpact,
				Category:     c.Category,
				OrderIndex:   j,
			}
			if n := strings.TrimSpace(c.Next); n != "" {
				ch.NextScenarioID = &n
			}
			b.Choices = append(b.Choices, ch)
		}
	}
	return b, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
