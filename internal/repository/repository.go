// Package repository keeps algorithm versions and calculation history in
// PostgreSQL. Tables are created out of band from Schema.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
)

const Schema = `
CREATE TABLE IF NOT EXISTS algorithm_versions (
	version      TEXT PRIMARY KEY,
	published_at TIMESTAMPTZ NOT NULL,
	definition   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS history_points (
	entity_id         TEXT NOT NULL,
	entity_kind       TEXT NOT NULL,
	metric            TEXT NOT NULL,
	period            TEXT NOT NULL,
	value             DOUBLE PRECISION NOT NULL,
	algorithm_version TEXT NOT NULL,
	recorded_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS history_points_series
	ON history_points (entity_kind, entity_id, metric, algorithm_version, period, recorded_at DESC);

CREATE TABLE IF NOT EXISTS risk_assessments (
	equipment_id      TEXT NOT NULL,
	algorithm_version TEXT NOT NULL,
	computed_at       TIMESTAMPTZ NOT NULL,
	body              JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS risk_assessments_equipment
	ON risk_assessments (equipment_id, computed_at);
`

const uniqueViolation = "23505"

// AlgorithmStore is the durable backing of algorithm.Repository.
type AlgorithmStore struct {
	db *sqlx.DB
}

var _ algorithm.Store = (*AlgorithmStore)(nil)

func NewAlgorithmStore(db *sqlx.DB) *AlgorithmStore { return &AlgorithmStore{db: db} }

func (s *AlgorithmStore) Append(ctx context.Context, v algorithm.Version) error {
	def, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal algorithm version %s: %w", v.Version, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO algorithm_versions(version, published_at, definition) VALUES ($1,$2,$3)`,
		v.Version, v.PublishedAt, def)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrVersionConflict, v.Version)
		}
		return err
	}
	return nil
}

func (s *AlgorithmStore) LoadAll(ctx context.Context) ([]algorithm.Version, error) {
	var defs [][]byte
	if err := s.db.SelectContext(ctx, &defs, `SELECT definition FROM algorithm_versions ORDER BY published_at`); err != nil {
		return nil, err
	}
	out := make([]algorithm.Version, 0, len(defs))
	for _, def := range defs {
		var v algorithm.Version
		if err := json.Unmarshal(def, &v); err != nil {
			return nil, fmt.Errorf("failed to decode algorithm version: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// HistoryStore implements history.Store on two append-only tables.
type HistoryStore struct {
	db *sqlx.DB
}

var _ history.Store = (*HistoryStore)(nil)

func NewHistoryStore(db *sqlx.DB) *HistoryStore { return &HistoryStore{db: db} }

func (s *HistoryStore) Append(ctx context.Context, points ...domain.HistoricalDataPoint) error {
	if len(points) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO history_points
		(entity_id, entity_kind, metric, period, value, algorithm_version, recorded_at)
		VALUES (:entity_id, :entity_kind, :metric, :period, :value, :algorithm_version, :recorded_at)`, points)
	if err != nil {
		return fmt.Errorf("failed to insert %d history points: %w", len(points), err)
	}
	return nil
}

// Series keeps the most recently recorded value of each period.
func (s *HistoryStore) Series(ctx context.Context, key history.SeriesKey) ([]domain.HistoricalDataPoint, error) {
	var rows []domain.HistoricalDataPoint
	err := s.db.SelectContext(ctx, &rows, `SELECT DISTINCT ON (period)
			entity_id, entity_kind, metric, period, value, algorithm_version, recorded_at
		FROM history_points
		WHERE entity_kind = $1 AND entity_id = $2 AND metric = $3 AND algorithm_version = $4
		ORDER BY period, recorded_at DESC`,
		string(key.EntityKind), key.EntityID, key.Metric, key.AlgorithmVersion)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].RecordedAt = rows[i].RecordedAt.UTC()
	}
	return rows, nil
}

func (s *HistoryStore) AppendAssessment(ctx context.Context, a domain.RiskAssessment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO risk_assessments(equipment_id, algorithm_version, computed_at, body) VALUES ($1,$2,$3,$4)`,
		a.EquipmentID, a.AlgorithmVersion, a.ComputedAt, body)
	return err
}

type assessmentRow struct {
	ComputedAt time.Time `db:"computed_at"`
	Body       []byte    `db:"body"`
}

func (s *HistoryStore) Assessments(ctx context.Context, equipmentID, version string) ([]domain.RiskAssessment, error) {
	q := `SELECT computed_at, body FROM risk_assessments WHERE equipment_id = $1`
	args := []any{equipmentID}
	if version != "" {
		q += ` AND algorithm_version = $2`
		args = append(args, version)
	}
	q += ` ORDER BY computed_at, algorithm_version`

	var rows []assessmentRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]domain.RiskAssessment, len(rows))
	for i, r := range rows {
		if err := json.Unmarshal(r.Body, &out[i]); err != nil {
			return nil, fmt.Errorf("failed to decode assessment: %w", err)
		}
	}
	return out, nil
}
