package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

type Repo struct{ DB *pgxpool.Pool }

// Insert writes m as part of tx; caller owns commit/rollback.
func Insert(ctx context.Context, tx pgx.Tx, m Message) error {
	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return fmt.Errorf("encode outbox headers: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox(id, topic, msg_key, payload, headers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Topic, m.Key, m.Payload, headers, m.CreatedAt,
	)
	return err
}

// Claim: SKIP LOCKED supaya beberapa relay bisa jalan paralel tanpa kirim dobel.
func (r *Repo) Claim(ctx context.Context, limit int, publish func(context.Context, []Message) error) (int, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, topic, msg_key, payload, headers, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, err
	}

	var batch []Message
	var ids []string
	for rows.Next() {
		var m Message
		var headers []byte
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &headers, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &m.Headers); err != nil {
				rows.Close()
				return 0, fmt.Errorf("decode outbox headers %s: %w", m.ID, err)
			}
		}
		batch = append(batch, m)
		ids = append(ids, m.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET published_at = $2 WHERE id = ANY($1)`, ids, time.Now().UTC()); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(batch), nil
}
