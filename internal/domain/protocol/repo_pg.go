package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type protocolRepoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the postgres-backed repository. Records live in the
// protocols table: the four required metadata columns plus a JSONB data bag
// for the open-ended variant fields. The summary index is the
// protocol_summaries table; Save maintains both inside one transaction.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &protocolRepoPG{pool: pool}
}

func (r *protocolRepoPG) Save(ctx context.Context, ownerID string, p *Protocol) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal protocol %s: %w", p.ID, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO protocols (owner_id, id, chiffre, datum, protokollnummer, protocol_type, created_at, last_modified, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (owner_id, id) DO UPDATE SET
			chiffre = EXCLUDED.chiffre,
			datum = EXCLUDED.datum,
			protokollnummer = EXCLUDED.protokollnummer,
			protocol_type = EXCLUDED.protocol_type,
			last_modified = EXCLUDED.last_modified,
			data = EXCLUDED.data`,
		ownerID, p.ID, p.Chiffre, p.Datum, p.Protokollnummer, string(p.ProtocolType),
		p.CreatedAt, p.LastModified, data)
	if err != nil {
		return fmt.Errorf("upsert protocol %s: %w", p.ID, err)
	}

	// Remove-then-insert keeps the index semantics identical to the local
	// backend: any stale entry for the id goes first.
	if _, err := tx.Exec(ctx, `DELETE FROM protocol_summaries WHERE owner_id = $1 AND id = $2`, ownerID, p.ID); err != nil {
		return fmt.Errorf("clear summary %s: %w", p.ID, err)
	}
	sum := p.Summary()
	_, err = tx.Exec(ctx, `
		INSERT INTO protocol_summaries (owner_id, id, chiffre, datum, protokollnummer, protocol_type, last_modified)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ownerID, sum.ID, sum.Chiffre, sum.Datum, sum.Protokollnummer, string(sum.ProtocolType), sum.LastModified)
	if err != nil {
		return fmt.Errorf("insert summary %s: %w", p.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save %s: %w", p.ID, err)
	}
	return nil
}

func (r *protocolRepoPG) Load(ctx context.Context, ownerID, id string) (*Protocol, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM protocols WHERE owner_id = $1 AND id = $2`, ownerID, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load protocol %s: %w", id, err)
	}
	var p Protocol
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode protocol %s: %w", id, err)
	}
	return &p, nil
}

func (r *protocolRepoPG) Delete(ctx context.Context, ownerID, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Unknown ids fall through both deletes untouched: delete is idempotent.
	if _, err := tx.Exec(ctx, `DELETE FROM protocols WHERE owner_id = $1 AND id = $2`, ownerID, id); err != nil {
		return fmt.Errorf("delete protocol %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM protocol_summaries WHERE owner_id = $1 AND id = $2`, ownerID, id); err != nil {
		return fmt.Errorf("delete summary %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete %s: %w", id, err)
	}
	return nil
}

func (r *protocolRepoPG) List(ctx context.Context, ownerID string) ([]ListItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, chiffre, datum, protokollnummer, protocol_type, last_modified
		FROM protocol_summaries
		WHERE owner_id = $1
		ORDER BY last_modified DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	items := []ListItem{}
	for rows.Next() {
		var it ListItem
		var typ string
		if err := rows.Scan(&it.ID, &it.Chiffre, &it.Datum, &it.Protokollnummer, &typ, &it.LastModified); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		it.ProtocolType = Type(typ)
		items = append(items, it)
	}
	return items, rows.Err()
}
