package reports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suiguard/suiguard/internal/pagination"
	"github.com/suiguard/suiguard/internal/risk"
	"github.com/suiguard/suiguard/internal/tracker"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func report(id, pkg string, offset time.Duration) *tracker.Report {
	score := 71
	return &tracker.Report{
		ID:              id,
		PackageID:       pkg,
		Protocol:        "navi",
		Deployer:        "0xdev",
		TxDigest:        "tx-" + id,
		RiskLevel:       risk.LevelHigh,
		RiskScore:       71,
		Confidence:      71.5,
		Vulnerabilities: []string{"Dangerous function: transfer("},
		SecurityIssues:  []string{"Multiple dangerous functions detected: 6"},
		Recommendations: []string{risk.RecommendReject},
		MLAnalysis:      &tracker.MLAnalysis{AnalysisMethod: risk.MethodMLIntegrated, RiskScore: &score, ModelVersion: "v2"},
		AnalyzerVersion: "v1.0-ml",
		AnalyzedAt:      base.Add(offset),
	}
}

// exerciseStore runs the shared Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, report("rpt_a", "0x1", 0)))
	require.NoError(t, s.Save(ctx, report("rpt_b", "0x1", time.Minute)))
	require.NoError(t, s.Save(ctx, report("rpt_c", "0x2", 2*time.Minute)))

	got, err := s.Get(ctx, "rpt_a")
	require.NoError(t, err)
	assert.Equal(t, report("rpt_a", "0x1", 0), got)

	_, err = s.Get(ctx, "rpt_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	byPkg, err := s.ListByPackage(ctx, "0x1", nil, 10)
	require.NoError(t, err)
	require.Len(t, byPkg.Reports, 2)
	assert.Equal(t, "rpt_b", byPkg.Reports[0].ID, "newest first")
	assert.Equal(t, "rpt_a", byPkg.Reports[1].ID)
	assert.Empty(t, byPkg.NextCursor)

	recent, err := s.ListRecent(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, recent.Reports, 2)
	assert.Equal(t, "rpt_c", recent.Reports[0].ID)
	require.NotEmpty(t, recent.NextCursor)

	after, err := pagination.Decode(recent.NextCursor)
	require.NoError(t, err)
	rest, err := s.ListRecent(ctx, after, 2)
	require.NoError(t, err)
	require.Len(t, rest.Reports, 1)
	assert.Equal(t, "rpt_a", rest.Reports[0].ID)
	assert.Empty(t, rest.NextCursor)

	none, err := s.ListByPackage(ctx, "0x9", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none.Reports)

	// resaving updates in place
	updated := report("rpt_a", "0x1", 0)
	updated.RiskLevel = risk.LevelMedium
	require.NoError(t, s.Save(ctx, updated))
	got, err = s.Get(ctx, "rpt_a")
	require.NoError(t, err)
	assert.Equal(t, risk.LevelMedium, got.RiskLevel)
	all, err := s.ListRecent(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all.Reports, 3)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	r := report("rpt_a", "0x1", 0)
	require.NoError(t, s.Save(ctx, r))

	r.RiskScore = 1
	got, err := s.Get(ctx, "rpt_a")
	require.NoError(t, err)
	assert.Equal(t, 71, got.RiskScore)

	got.RiskScore = 2
	again, _ := s.Get(ctx, "rpt_a")
	assert.Equal(t, 71, again.RiskScore)
}

func TestMemoryStore_RejectsMissingID(t *testing.T) {
	assert.Error(t, NewMemoryStore().Save(context.Background(), &tracker.Report{}))
}

func TestMemoryStore_LimitClamped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < DefaultLimit+5; i++ {
		require.NoError(t, s.Save(ctx, report(fmt.Sprintf("rpt_%03d", i), "0x1", time.Duration(i)*time.Second)))
	}
	got, err := s.ListByPackage(ctx, "0x1", nil, 1000)
	require.NoError(t, err)
	assert.Len(t, got.Reports, DefaultLimit)
	assert.Equal(t, fmt.Sprintf("rpt_%03d", DefaultLimit+4), got.Reports[0].ID)
	assert.NotEmpty(t, got.NextCursor)
}

func TestMemoryStore_PagesThroughTies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"rpt_a", "rpt_b", "rpt_c", "rpt_d", "rpt_e"} {
		require.NoError(t, s.Save(ctx, report(id, "0x1", 0)))
	}

	var seen []string
	var after *pagination.Cursor
	for pages := 0; pages < 10; pages++ {
		page, err := s.ListByPackage(ctx, "0x1", after, 2)
		require.NoError(t, err)
		for _, r := range page.Reports {
			seen = append(seen, r.ID)
		}
		if page.NextCursor == "" {
			break
		}
		after, err = pagination.Decode(page.NextCursor)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"rpt_e", "rpt_d", "rpt_c", "rpt_b", "rpt_a"}, seen)
}
