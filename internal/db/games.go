package db

import "time"

// GameRecord summarizes one room's game for the history table. Room state
// itself is never persisted; this is write-only telemetry about sessions
// that ended.
type GameRecord struct {
	RoomCode            string
	PackID              string
	PlayerCount         int
	CustomQuestionCount int
	QuestionsAnswered   int
	TotalQuestions      int
	Finished            bool
	StartedAt           time.Time
}

func (d *DB) RecordGame(rec GameRecord) error {
	var startedAt *time.Time
	if !rec.StartedAt.IsZero() {
		startedAt = &rec.StartedAt
	}
	_, err := d.conn.Exec(`
		INSERT INTO games (room_code, pack_id, player_count, custom_question_count,
			questions_answered, total_questions, finished, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.RoomCode, rec.PackID, rec.PlayerCount, rec.CustomQuestionCount,
		rec.QuestionsAnswered, rec.TotalQuestions, rec.Finished, startedAt,
	)
	return err
}

// PackPopularity returns games-played counts per pack, most played first.
func (d *DB) PackPopularity() (map[string]int, error) {
	rows, err := d.conn.Query(`SELECT pack_id, COUNT(*) FROM games GROUP BY pack_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var packID string
		var n int
		if err := rows.Scan(&packID, &n); err != nil {
			return nil, err
		}
		counts[packID] = n
	}
	return counts, rows.Err()
}
