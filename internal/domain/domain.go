package domain

const (
	ExperienceDraft     = "draft"
	ExperiencePublished = "published"
)

const (
	ScenarioDecision   = "decision"
	ScenarioInfo       = "info"
	ScenarioReflection = "reflection"
)

const (
	OutcomeInProgress = "in_progress"
	OutcomeCompleted  = "completed"
	OutcomeExited     = "exited"
)

type Experience struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Category           string   `json:"category,omitempty"`
	Region             string   `json:"region,omitempty"`
	Culture            string   `json:"culture,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty" enum:"beginner,intermediate,advanced"`
	EstimatedDuration  int      `json:"estimated_duration,omitempty"`
	CulturalContext    string   `json:"cultural_context,omitempty"`
	LearningObjectives []string `json:"learning_objectives"`
	Tags               []string `json:"tags"`
	Featured           bool     `json:"featured"`
	Status             string   `json:"status" enum:"draft,published"`
	ScoringPolicy      string   `json:"scoring_policy"`
	MaxSteps           int      `json:"max_steps,omitempty"`
	PublishedAt        *string  `json:"published_at,omitempty" format:"date-time"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

func (e Experience) Published() bool { return e.Status == ExperiencePublished }

// Condition gates arrival at a scenario against the traveller's progress so far.
type Condition struct {
	MinPoints       *int     `json:"min_points,omitempty" yaml:"min_points,omitempty"`
	MaxPoints       *int     `json:"max_points,omitempty" yaml:"max_points,omitempty"`
	RequiresVisited []string `json:"requires_visited,omitempty" yaml:"requires_visited,omitempty"`
}

// Empty is true when the condition places no constraint on progress.
func (c Condition) Empty() bool {
	return c.MinPoints == nil && c.MaxPoints == nil && len(c.RequiresVisited) == 0
}

type Scenario struct {
	ID            string    `json:"id"`
	ExperienceID  string    `json:"experience_id"`
	ParentID      *string   `json:"parent_id,omitempty"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Type          string    `json:"type" enum:"decision,info,reflection"`
	OrderIndex    int       `json:"order_index"`
	Terminal      bool      `json:"terminal"`
	PointsAwarded int       `json:"points_awarded"`
	TimeLimit     *int      `json:"time_limit,omitempty"`
	Condition     Condition `json:"condition"`
	ImageURL      string    `json:"image_url,omitempty"`
	AudioURL      string    `json:"audio_url,omitempty"`
}

type Choice struct {
	ID             string  `json:"id"`
	ScenarioID     string  `json:"scenario_id"`
	NextScenarioID *string `json:"next_scenario_id,omitempty"`
	Text           string  `json:"text"`
	Consequence    string  `json:"consequence,omitempty"`
	PointsImpact   int     `json:"points_impact"`
	Category       string  `json:"category,omitempty"`
	OrderIndex     int     `json:"order_index"`
}

// Ledger is one user's traversal record for one experience.
type Ledger struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"user_id"`
	ExperienceID         string       `json:"experience_id"`
	CurrentScenarioID    *string      `json:"current_scenario_id,omitempty"`
	Outcome              string       `json:"outcome" enum:"in_progress,completed,exited"`
	IsCompleted          bool         `json:"is_completed"`
	CompletionPercentage int          `json:"completion_percentage"`
	PointsEarned         int          `json:"points_earned"`
	TimeSpent            int          `json:"time_spent"`
	EntryPoints          int          `json:"entry_points"`
	TotalScenarios       int          `json:"total_scenarios"`
	MaxSteps             int          `json:"max_steps"`
	Policy               string       `json:"policy"`
	StepCount            int          `json:"step_count"`
	Steps                []LedgerStep `json:"steps"`
	StartedAt            string       `json:"started_at" format:"date-time"`
	CompletedAt          *string      `json:"completed_at,omitempty" format:"date-time"`
}

// ChoicesMade returns the ordered choice history.
func (l Ledger) ChoicesMade() []string {
	out := make([]string, 0, len(l.Steps))
	for _, s := range l.Steps {
		out = append(out, s.ChoiceID)
	}
	return out
}

// Visited returns the set of scenarios reached so far, entry included.
func (l Ledger) Visited() map[string]bool {
	visited := make(map[string]bool, len(l.Steps)+1)
	if len(l.Steps) == 0 && l.CurrentScenarioID != nil {
		visited[*l.CurrentScenarioID] = true
	}
	for _, s := range l.Steps {
		visited[s.FromScenarioID] = true
		if s.ToScenarioID != nil {
			visited[*s.ToScenarioID] = true
		}
	}
	return visited
}

type LedgerStep struct {
	LedgerID       string  `json:"ledger_id"`
	Seq            int     `json:"seq"`
	ChoiceID       string  `json:"choice_id"`
	FromScenarioID string  `json:"from_scenario_id"`
	ToScenarioID   *string `json:"to_scenario_id,omitempty"`
	PointsImpact   int     `json:"points_impact"`
	ArrivalPoints  int     `json:"arrival_points"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	TimeLimit      *int    `json:"time_limit,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type UserStats struct {
	UserID               string `json:"user_id"`
	EmpathyPoints        int    `json:"empathy_points"`
	ExperiencesCompleted int    `json:"experiences_completed"`
	ExperiencesExited    int    `json:"experiences_exited"`
	UpdatedAt            string `json:"updated_at,omitempty" format:"date-time"`
}

type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	ExperienceID string `json:"experience_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	ActorID      string `json:"actor_id"`
	Payload      string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
