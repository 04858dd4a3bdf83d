package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lifeswap/internal/domain"
)

const experienceColumns = `id,title,COALESCE(description,''),COALESCE(category,''),COALESCE(region,''),COALESCE(culture,''),COALESCE(difficulty,''),estimated_duration,COALESCE(cultural_context,''),featured,status,scoring_policy,max_steps,published_at,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperience(row rowScanner) (domain.Experience, error) {
	var e domain.Experience
	var featured int
	var publishedAt sql.NullString
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Category, &e.Region, &e.Culture, &e.Difficulty,
		&e.EstimatedDuration, &e.CulturalContext, &featured, &e.Status, &e.ScoringPolicy, &e.MaxSteps,
		&publishedAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Featured = featured == 1
	e.PublishedAt = stringPtr(publishedAt)
	return e, nil
}

func (r Repo) GetExperience(ctx context.Context, tx *sql.Tx, id string) (domain.Experience, error) {
	q := r.q(tx)
	e, err := scanExperience(q.QueryRowContext(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE id=?`, id))
	if err != nil {
		return e, err
	}
	if err := loadLabels(ctx, q, &e); err != nil {
		return e, err
	}
	return e, nil
}

func loadLabels(ctx context.Context, q querier, e *domain.Experience) error {
	rows, err := q.QueryContext(ctx, `SELECT kind,value FROM experience_labels WHERE experience_id=? ORDER BY kind, position`, e.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	e.Tags = []string{}
	e.LearningObjectives = []string{}
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return err
		}
		switch kind {
		case "tag":
			e.Tags = append(e.Tags, value)
		case "objective":
			e.LearningObjectives = append(e.LearningObjectives, value)
		}
	}
	return rows.Err()
}

type ExperienceFilters struct {
	Status     string
	Category   string
	Region     string
	Difficulty string
	Featured   *bool
	Limit      int
	Offset     int
}

func (r Repo) ListExperiences(ctx context.Context, f ExperienceFilters) ([]domain.Experience, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Region != "" {
		clauses = append(clauses, "region=?")
		args = append(args, f.Region)
	}
	if f.Difficulty != "" {
		clauses = append(clauses, "difficulty=?")
		args = append(args, f.Difficulty)
	}
	if f.Featured != nil {
		clauses = append(clauses, "featured=?")
		args = append(args, boolInt(*f.Featured))
	}
	query := `SELECT ` + experienceColumns + ` FROM experiences WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY featured DESC, created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Experience
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := loadLabels(ctx, r.DB, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// DistinctValues lists the non-empty values of a catalog column over published experiences.
func (r Repo) DistinctValues(ctx context.Context, column string) ([]string, error) {
	switch column {
	case "category", "region", "difficulty":
	default:
		return nil, fmt.Errorf("unsupported catalog column %q", column)
	}
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT %[1]s FROM experiences WHERE status='published' AND %[1]s IS NOT NULL AND %[1]s<>'' ORDER BY %[1]s`, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// ReplaceExperience upserts the experience row and swaps its whole graph.
func (r Repo) ReplaceExperience(ctx context.Context, tx *sql.Tx, e domain.Experience, scenarios []domain.Scenario, choices []domain.Choice) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO experiences(id,title,description,category,region,culture,difficulty,estimated_duration,cultural_context,featured,status,scoring_policy,max_steps,published_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, description=excluded.description, category=excluded.category, region=excluded.region,
 culture=excluded.culture, difficulty=excluded.difficulty, estimated_duration=excluded.estimated_duration, cultural_context=excluded.cultural_context,
 featured=excluded.featured, status=excluded.status, scoring_policy=excluded.scoring_policy, max_steps=excluded.max_steps,
 published_at=excluded.published_at, updated_at=excluded.updated_at`,
		e.ID, e.Title, nullable(e.Description), nullable(e.Category), nullable(e.Region), nullable(e.Culture), nullable(e.Difficulty),
		e.EstimatedDuration, nullable(e.CulturalContext), boolInt(e.Featured), e.Status, e.ScoringPolicy, e.MaxSteps,
		nullableStringPtr(e.PublishedAt), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert experience: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM experience_labels WHERE experience_id=?`, e.ID); err != nil {
		return err
	}
	for i, v := range e.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO experience_labels(experience_id,kind,position,value) VALUES (?,?,?,?)`, e.ID, "tag", i, v); err != nil {
			return err
		}
	}
	for i, v := range e.LearningObjectives {
		if _, err := tx.ExecContext(ctx, `INSERT INTO experience_labels(experience_id,kind,position,value) VALUES (?,?,?,?)`, e.ID, "objective", i, v); err != nil {
			return err
		}
	}
	// choices and requirements cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM scenarios WHERE experience_id=?`, e.ID); err != nil {
		return err
	}
	for _, s := range scenarios {
		if err := insertScenario(ctx, tx, s); err != nil {
			return fmt.Errorf("scenario %s: %w", s.ID, err)
		}
	}
	for _, c := range choices {
		if err := insertChoice(ctx, tx, c); err != nil {
			return fmt.Errorf("choice %s: %w", c.ID, err)
		}
	}
	return nil
}

func (r Repo) PublishExperience(ctx context.Context, tx *sql.Tx, id, at string) error {
	res, err := tx.ExecContext(ctx, `UPDATE experiences SET status='published', published_at=?, updated_at=? WHERE id=?`, at, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ScenarioOwners maps each given scenario id that already exists to its experience.
func (r Repo) ScenarioOwners(ctx context.Context, tx *sql.Tx, ids []string) (map[string]string, error) {
	owners := map[string]string{}
	if len(ids) == 0 {
		return owners, nil
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,experience_id FROM scenarios WHERE id IN (`+placeholders(len(ids))+`)`, anyArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, exp string
		if err := rows.Scan(&id, &exp); err != nil {
			return nil, err
		}
		owners[id] = exp
	}
	return owners, rows.Err()
}
