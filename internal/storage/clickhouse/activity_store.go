package clickhouse

import (
	"context"
	"fmt"

	"solana-fund-dao/internal/events"
)

// chRows is the subset of driver.Rows used by the scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ActivityStore archives fund lifecycle events into the fund_activity table.
// It implements events.Publisher so it can be attached to the event fan-out.
type ActivityStore struct {
	conn *Conn
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(conn *Conn) *ActivityStore {
	return &ActivityStore{conn: conn}
}

// Compile-time interface check.
var _ events.Publisher = (*ActivityStore)(nil)

// Publish appends an event. Re-published events with the same id collapse
// on merge (ReplacingMergeTree).
func (s *ActivityStore) Publish(ctx context.Context, e events.Event) error {
	query := `
		INSERT INTO fund_activity (
			event_id, event_type, fund_id, proposal_id, actor,
			amount, state, detail, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		e.ID, string(e.Kind), e.FundID, e.ProposalID, e.Actor,
		e.Amount, e.State, e.Detail, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert fund activity: %w", err)
	}
	return nil
}

// ListByFund retrieves the archived events of a fund, ordered by occurred_at ASC.
func (s *ActivityStore) ListByFund(ctx context.Context, fundID string) ([]events.Event, error) {
	query := `
		SELECT event_id, event_type, fund_id, proposal_id, actor,
			amount, state, detail, occurred_at
		FROM fund_activity FINAL
		WHERE fund_id = ?
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("query fund activity: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

// CountByKind returns the number of archived events per kind for a fund.
func (s *ActivityStore) CountByKind(ctx context.Context, fundID string) (map[events.Kind]uint64, error) {
	query := `
		SELECT event_type, count(*)
		FROM fund_activity FINAL
		WHERE fund_id = ?
		GROUP BY event_type
	`

	rows, err := s.conn.Query(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("count fund activity: %w", err)
	}
	defer rows.Close()

	counts := make(map[events.Kind]uint64)
	for rows.Next() {
		var (
			kind  string
			count uint64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan fund activity count: %w", err)
		}
		counts[events.Kind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fund activity counts: %w", err)
	}
	return counts, nil
}

func scanActivity(rows chRows) ([]events.Event, error) {
	var out []events.Event

	for rows.Next() {
		var (
			e    events.Event
			kind string
		)
		err := rows.Scan(
			&e.ID, &kind, &e.FundID, &e.ProposalID, &e.Actor,
			&e.Amount, &e.State, &e.Detail, &e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fund activity row: %w", err)
		}
		e.Kind = events.Kind(kind)
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fund activity rows: %w", err)
	}

	return out, nil
}
