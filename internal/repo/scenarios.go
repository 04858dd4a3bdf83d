package repo

import (
	"context"
	"database/sql"

	"lifeswap/internal/domain"
)

const scenarioColumns = `id,experience_id,parent_id,title,content,type,order_index,terminal,points_awarded,time_limit,cond_min_points,cond_max_points,COALESCE(image_url,''),COALESCE(audio_url,'')`

func insertScenario(ctx context.Context, tx *sql.Tx, s domain.Scenario) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO scenarios(`+
		`id,experience_id,parent_id,title,content,type,order_index,terminal,points_awarded,time_limit,cond_min_points,cond_max_points,image_url,audio_url)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ExperienceID, nullableStringPtr(s.ParentID), s.Title, s.Content, s.Type, s.OrderIndex, boolInt(s.Terminal),
		s.PointsAwarded, nullableIntPtr(s.TimeLimit), nullableIntPtr(s.Condition.MinPoints), nullableIntPtr(s.Condition.MaxPoints),
		nullable(s.ImageURL), nullable(s.AudioURL))
	if err != nil {
		return err
	}
	for i, req := range s.Condition.RequiresVisited {
		if _, err := tx.ExecContext(ctx, `INSERT INTO scenario_requirements(scenario_id,position,required_scenario_id) VALUES (?,?,?)`, s.ID, i, req); err != nil {
			return err
		}
	}
	return nil
}

func insertChoice(ctx context.Context, tx *sql.Tx, c domain.Choice) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO choices(id,scenario_id,next_scenario_id,text,consequence,points_impact,category,order_index) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.ScenarioID, nullableStringPtr(c.NextScenarioID), c.Text, nullable(c.Consequence), c.PointsImpact, nullable(c.Category), c.OrderIndex)
	return err
}

func scanScenario(row rowScanner) (domain.Scenario, error) {
	var s domain.Scenario
	var parentID sql.NullString
	var terminal int
	var timeLimit, minPoints, maxPoints sql.NullInt64
	err := row.Scan(&s.ID, &s.ExperienceID, &parentID, &s.Title, &s.Content, &s.Type, &s.OrderIndex, &terminal,
		&s.PointsAwarded, &timeLimit, &minPoints, &maxPoints, &s.ImageURL, &s.AudioURL)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.ParentID = stringPtr(parentID)
	s.Terminal = terminal == 1
	s.TimeLimit = intPtr(timeLimit)
	s.Condition.MinPoints = intPtr(minPoints)
	s.Condition.MaxPoints = intPtr(maxPoints)
	return s, nil
}

func (r Repo) GetScenario(ctx context.Context, tx *sql.Tx, id string) (domain.Scenario, error) {
	q := r.q(tx)
	s, err := scanScenario(q.QueryRowContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id=?`, id))
	if err != nil {
		return s, err
	}
	reqs, err := requirements(ctx, q, []string{id})
	if err != nil {
		return s, err
	}
	s.Condition.RequiresVisited = reqs[id]
	return s, nil
}

// ListScenarios returns an experience's scenarios in display order.
func (r Repo) ListScenarios(ctx context.Context, tx *sql.Tx, experienceID string) ([]domain.Scenario, error) {
	q := r.q(tx)
	rows, err := q.QueryContext(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE experience_id=? ORDER BY order_index, id`, experienceID)
	if err != nil {
		return nil, err
	}
	var res []domain.Scenario
	var ids []string
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reqs, err := requirements(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Condition.RequiresVisited = reqs[res[i].ID]
	}
	return res, nil
}

func requirements(ctx context.Context, q querier, scenarioIDs []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(scenarioIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `SELECT scenario_id,required_scenario_id FROM scenario_requirements WHERE scenario_id IN (`+placeholders(len(scenarioIDs))+`) ORDER BY scenario_id, position`, anyArgs(scenarioIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid, req string
		if err := rows.Scan(&sid, &req); err != nil {
			return nil, err
		}
		out[sid] = append(out[sid], req)
	}
	return out, rows.Err()
}

func scanChoices(rows *sql.Rows) ([]domain.Choice, error) {
	defer rows.Close()
	var res []domain.Choice
	for rows.Next() {
		var c domain.Choice
		var next sql.NullString
		if err := rows.Scan(&c.ID, &c.ScenarioID, &next, &c.Text, &c.Consequence, &c.PointsImpact, &c.Category, &c.OrderIndex); err != nil {
			return nil, err
		}
		c.NextScenarioID = stringPtr(next)
		res = append(res, c)
	}
	return res, rows.Err()
}

const choiceColumns = `c.id,c.scenario_id,c.next_scenario_id,c.text,COALESCE(c.consequence,''),c.points_impact,COALESCE(c.category,''),c.order_index`

// ListChoices returns the outgoing choices of one scenario in declared order.
func (r Repo) ListChoices(ctx context.Context, tx *sql.Tx, scenarioID string) ([]domain.Choice, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+choiceColumns+` FROM choices c WHERE c.scenario_id=? ORDER BY c.order_index, c.id`, scenarioID)
	if err != nil {
		return nil, err
	}
	return scanChoices(rows)
}

// ListExperienceChoices returns every choice declared in an experience.
func (r Repo) ListExperienceChoices(ctx context.Context, tx *sql.Tx, experienceID string) ([]domain.Choice, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+choiceColumns+` FROM choices c JOIN scenarios s ON s.id=c.scenario_id
WHERE s.experience_id=? ORDER BY c.scenario_id, c.order_index, c.id`, experienceID)
	if err != nil {
		return nil, err
	}
	return scanChoices(rows)
}
