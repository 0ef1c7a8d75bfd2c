package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// RosterRow is one student joined with their class and live attempt, as read
// from the store. Derived fields (is_online, inactive_seconds) are computed
// by the service against the clock source, not here.
type RosterRow struct {
	UserID       int
	Username     string
	Name         string
	ClassName    *string
	IsLocked     bool
	LastActivity time.Time
	AttemptID    *int64
	CurrentExam  *string
}

// RosterRepository backs the admin live roster.
type RosterRepository struct {
	pool *pgxpool.Pool
}

// NewRosterRepository creates a new RosterRepository.
func NewRosterRepository(pool *pgxpool.Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// ListStudents returns every student with class and in-progress attempt
// overlay, ordered for the admin console.
func (r *RosterRepository) ListStudents(ctx context.Context) ([]RosterRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.username, u.name, c.name, u.is_locked, u.last_activity,
		        a.id, e.title
		 FROM users u
		 LEFT JOIN classes c ON u.class_id = c.id
		 LEFT JOIN exam_attempts a ON a.user_id = u.id AND a.status = $1
		 LEFT JOIN exams e ON e.id = a.exam_id
		 WHERE u.role = $2
		 ORDER BY c.name NULLS LAST, u.name ASC`,
		model.AttemptStatusInProgress, model.RoleStudent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []RosterRow
	for rows.Next() {
		var row RosterRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.Name,
			&row.ClassName, &row.IsLocked, &row.LastActivity,
			&row.AttemptID, &row.CurrentExam); err != nil {
			return nil, err
		}
		roster = append(roster, row)
	}
	return roster, rows.Err()
}
