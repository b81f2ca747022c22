// Package directory reads the member roster owned by the membership
// subsystem. It never writes.
package directory

import (
	"context"
	"database/sql"
	"fmt"

	"CoopLedgerSaas/internal/model"

	"github.com/lib/pq"
)

type Directory struct {
	db *sql.DB
}

func New(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Open connects with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping member directory: %w", err)
	}
	return db, nil
}

// ActiveMembers returns members whose membership_status is one of statuses,
// ordered by id.
func (d *Directory) ActiveMembers(ctx context.Context, statuses []string) ([]model.Member, error) {
	return d.query(ctx, `
		SELECT id, first_name, last_name, membership_status
		FROM members
		WHERE membership_status = ANY($1)
		ORDER BY id`, pq.Array(statuses))
}

// MembersByIDs returns the members with the given ids keyed by id. Unknown ids
// are absent from the map.
func (d *Directory) MembersByIDs(ctx context.Context, ids []int64) (map[int64]model.Member, error) {
	out := make(map[int64]model.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	members, err := d.query(ctx, `
		SELECT id, first_name, last_name, membership_status
		FROM members
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		out[m.ID] = m
	}
	return out, nil
}

func (d *Directory) query(ctx context.Context, q string, args ...any) ([]model.Member, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		var (
			m         model.Member
			first     sql.NullString
			last      sql.NullString
			statusCol sql.NullString
		)
		if err := rows.Scan(&m.ID, &first, &last, &statusCol); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.FirstName, m.LastName, m.MembershipStatus = first.String, last.String, statusCol.String
		out = append(out, m)
	}
	return out, rows.Err()
}
