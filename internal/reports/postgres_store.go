package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suiguard/suiguard/internal/pagination"
	"github.com/suiguard/suiguard/internal/risk"
	"github.com/suiguard/suiguard/internal/tracker"
)

// PostgresStore persists reports in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_reports table. cmd/migrate applies the same
// schema from migrations/ in deployed environments.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_reports (
			id                VARCHAR(40) PRIMARY KEY,
			package_id        VARCHAR(66) NOT NULL,
			protocol          VARCHAR(32) NOT NULL,
			deployer          VARCHAR(66) NOT NULL DEFAULT '',
			tx_digest         VARCHAR(64) NOT NULL DEFAULT '',
			risk_level        VARCHAR(16) NOT NULL,
			risk_score        INTEGER NOT NULL,
			confidence        DOUBLE PRECISION NOT NULL,
			vulnerabilities   JSONB NOT NULL DEFAULT '[]',
			security_issues   JSONB NOT NULL DEFAULT '[]',
			recommendations   JSONB NOT NULL DEFAULT '[]',
			ml_analysis       JSONB,
			analyzer_version  VARCHAR(16) NOT NULL,
			analyzed_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_risk_reports_package ON risk_reports(package_id, analyzed_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_risk_reports_analyzed ON risk_reports(analyzed_at DESC, id DESC);
	`)
	return err
}

const reportColumns = `id, package_id, protocol, deployer, tx_digest, risk_level, risk_score,
	confidence, vulnerabilities, security_issues, recommendations, ml_analysis,
	analyzer_version, analyzed_at`

func (p *PostgresStore) Save(ctx context.Context, r *tracker.Report) error {
	vulns, err := json.Marshal(nonNil(r.Vulnerabilities))
	if err != nil {
		return err
	}
	issues, err := json.Marshal(nonNil(r.SecurityIssues))
	if err != nil {
		return err
	}
	recs, err := json.Marshal(nonNil(r.Recommendations))
	if err != nil {
		return err
	}
	var ml []byte
	if r.MLAnalysis != nil {
		if ml, err = json.Marshal(r.MLAnalysis); err != nil {
			return err
		}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO risk_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			risk_level = EXCLUDED.risk_level,
			risk_score = EXCLUDED.risk_score,
			confidence = EXCLUDED.confidence,
			vulnerabilities = EXCLUDED.vulnerabilities,
			security_issues = EXCLUDED.security_issues,
			recommendations = EXCLUDED.recommendations,
			ml_analysis = EXCLUDED.ml_analysis,
			analyzer_version = EXCLUDED.analyzer_version,
			analyzed_at = EXCLUDED.analyzed_at
	`, r.ID, r.PackageID, r.Protocol, r.Deployer, r.TxDigest, string(r.RiskLevel), r.RiskScore,
		r.Confidence, vulns, issues, recs, ml, r.AnalyzerVersion, r.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*tracker.Report, error) {
	r, err := scanReport(p.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM risk_reports WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) ListByPackage(ctx context.Context, packageID string, after *pagination.Cursor, limit int) (*Page, error) {
	return p.list(ctx, []string{"package_id = $1"}, []any{packageID}, after, limit)
}

func (p *PostgresStore) ListRecent(ctx context.Context, after *pagination.Cursor, limit int) (*Page, error) {
	return p.list(ctx, nil, nil, after, limit)
}

func (p *PostgresStore) list(ctx context.Context, where []string, args []any, after *pagination.Cursor, limit int) (*Page, error) {
	if after != nil {
		where = append(where, fmt.Sprintf("(analyzed_at, id) < ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, after.At, after.ID)
	}
	q := `SELECT ` + reportColumns + ` FROM risk_reports`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit = normalizeLimit(limit)
	q += fmt.Sprintf(" ORDER BY analyzed_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := p.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return newPage(rows, limit), nil
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*tracker.Report, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*tracker.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*tracker.Report, error) {
	r := &tracker.Report{}
	var level string
	var vulns, issues, recs, ml []byte
	err := s.Scan(&r.ID, &r.PackageID, &r.Protocol, &r.Deployer, &r.TxDigest, &level, &r.RiskScore,
		&r.Confidence, &vulns, &issues, &recs, &ml, &r.AnalyzerVersion, &r.AnalyzedAt)
	if err != nil {
		return nil, err
	}
	r.RiskLevel = risk.Level(level)
	r.AnalyzedAt = r.AnalyzedAt.UTC()

	for _, f := range []struct {
		raw []byte
		dst *[]string
	}{{vulns, &r.Vulnerabilities}, {issues, &r.SecurityIssues}, {recs, &r.Recommendations}} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	if len(ml) > 0 {
		r.MLAnalysis = &tracker.MLAnalysis{}
		if err := json.Unmarshal(ml, r.MLAnalysis); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
