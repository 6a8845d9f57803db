// Package journal keeps a local log of pool operations for auditing.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Writer appends pool operation entries to the workspace journal.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Entry is one recorded pool operation.
type Entry struct {
	ID      int64  `json:"id"`
	OpID    string `json:"op_id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	Tag     string `json:"tag,omitempty"`
	OrgID   string `json:"org_id,omitempty"`
	Actor   string `json:"actor"`
	Payload string `json:"payload_json"`
}

// Append records one operation. The op id groups entries belonging to the
// same CLI invocation.
func (w Writer) Append(ctx context.Context, opID, evtType, tag, orgID, actor string, payload Payload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if opID == "" {
		opID = uuid.NewString()
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal journal payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx,
		`INSERT INTO events(op_id,ts,type,tag,org_id,actor,payload_json) VALUES (?,?,?,?,?,?,?)`,
		opID, now().UTC().Format(time.RFC3339), evtType, nullable(tag), nullable(orgID), actor, string(data))
	return err
}

// Filters narrow a Tail listing.
type Filters struct {
	Type string
	Tag  string
}

// Tail returns the n most recent entries, newest first.
func (w Writer) Tail(ctx context.Context, n int, f Filters) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,op_id,ts,type,COALESCE(tag,''),COALESCE(org_id,''),actor,payload_json FROM events`
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "type=?")
		args = append(args, f.Type)
	}
	if f.Tag != "" {
		conds = append(conds, "tag=?")
		args = append(args, f.Tag)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)

	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OpID, &e.TS, &e.Type, &e.Tag, &e.OrgID, &e.Actor, &e.Payload); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
