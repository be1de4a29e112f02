package joinstore

import (
	"context"
	"fmt"

	"shodh/internal/common/db"
)

// Schema creates the participant table used by MySQLStore.
const Schema = `CREATE TABLE IF NOT EXISTS contest_participants (
  id BIGINT NOT NULL AUTO_INCREMENT,
  user_id BIGINT NOT NULL,
  contest_id BIGINT NOT NULL,
  joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (id),
  UNIQUE KEY uk_contest_participants_user_contest (user_id, contest_id)
)`

// MySQLStore keeps joins in the contest_participants table.
type MySQLStore struct {
	db db.Querier
}

// NewMySQLStore creates a store on q.
func NewMySQLStore(q db.Querier) *MySQLStore {
	return &MySQLStore{db: q}
}

// EnsureSchema creates the participant table when it is missing.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create contest_participants failed: %w", err)
	}
	return nil
}

func (s *MySQLStore) Join(ctx context.Context, userID, contestID int64) error {
	query := "INSERT INTO contest_participants (user_id, contest_id) VALUES (?, ?)"
	if _, err := s.db.Exec(ctx, query, userID, contestID); err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return nil
		}
		return err
	}
	return nil
}

func (s *MySQLStore) HasJoined(ctx context.Context, userID, contestID int64) (bool, error) {
	query := "SELECT 1 FROM contest_participants WHERE user_id = ? AND contest_id = ? LIMIT 1"
	var one int
	if err := s.db.QueryRow(ctx, query, userID, contestID).Scan(&one); err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MySQLStore) Contests(ctx context.Context, userID int64) ([]int64, error) {
	query := "SELECT contest_id FROM contest_participants WHERE user_id = ? ORDER BY contest_id"
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
