package repo

import (
	"context"
	"database/sql"

	"lifeswap/internal/domain"
)

// BumpUserStats adds a sealed journey to the user's counters.
func (r Repo) BumpUserStats(ctx context.Context, tx *sql.Tx, userID string, points int, outcome, at string) error {
	completed, exited := 0, 0
	switch outcome {
	case domain.OutcomeCompleted:
		completed = 1
	case domain.OutcomeExited:
		exited = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO user_stats(user_id,empathy_points,experiences_completed,experiences_exited,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET empathy_points=empathy_points+excluded.empathy_points,
 experiences_completed=experiences_completed+excluded.experiences_completed,
 experiences_exited=experiences_exited+excluded.experiences_exited, updated_at=excluded.updated_at`,
		userID, points, completed, exited, at)
	return err
}

// GetUserStats returns zeroed counters for users who never finished a journey.
func (r Repo) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	st := domain.UserStats{UserID: userID}
	err := r.DB.QueryRowContext(ctx, `SELECT empathy_points,experiences_completed,experiences_exited,updated_at FROM user_stats WHERE user_id=?`, userID).
		Scan(&st.EmpathyPoints, &st.ExperiencesCompleted, &st.ExperiencesExited, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return st, nil
	}
	return st, err
}
