package packages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suiguard/suiguard/internal/analyzer"
	"github.com/suiguard/suiguard/internal/suirpc"
)

type fakeFetcher struct {
	mu      sync.Mutex
	sources map[string]string
	errs    map[string]error
	fetched []string
}

func (f *fakeFetcher) PackageSource(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return "", err
	}
	if src, ok := f.sources[id]; ok {
		return src, nil
	}
	return "", &suirpc.RPCError{Method: "sui_getNormalizedMoveModulesByPackage", Code: -32000, Message: "not found"}
}

func canon(short string) string {
	id, err := suirpc.NormalizeID(short)
	if err != nil {
		panic(err)
	}
	return id
}

func TestValidateIDs(t *testing.T) {
	valid, skipped := ValidateIDs([]string{"0x2", "abc", " 0xA ", "0x0002", "0xnothex"})
	assert.Equal(t, []string{canon("0x2"), canon("0xa")}, valid)
	assert.Equal(t, []string{"abc", "0xnothex"}, skipped)
}

func TestCheckBatchSize(t *testing.T) {
	assert.ErrorIs(t, CheckBatchSize(nil), ErrEmptyBatch)
	assert.NoError(t, CheckBatchSize(make([]string, MaxBatch)))
	assert.ErrorIs(t, CheckBatchSize(make([]string, MaxBatch+1)), ErrBatchTooBig)
}

func TestAnalyze_Success(t *testing.T) {
	id := canon("0xa")
	svc := NewService(&fakeFetcher{sources: map[string]string{
		id: "// Module: vault\npublic entry fun withdraw_all(param: u64) {\n  // Function body\n}\n",
	}}, nil)

	f, src := svc.Analyze(context.Background(), id)
	require.True(t, f.OK())
	assert.NotEmpty(t, src)
	assert.Contains(t, f.SuspiciousCalls, "withdraw_all")
	assert.Equal(t, []string{"withdraw_all"}, f.EntryFunctions)
}

func TestAnalyze_FetchFailures(t *testing.T) {
	missing, flaky, open := canon("0x1"), canon("0x3"), canon("0x4")
	svc := NewService(&fakeFetcher{errs: map[string]error{
		flaky: errors.New("dial tcp: connection refused"),
		open:  suirpc.ErrCircuitOpen,
	}}, nil)
	ctx := context.Background()

	f, src := svc.Analyze(ctx, missing)
	assert.Equal(t, analyzer.StatusFailed, f.Status)
	assert.Contains(t, f.Error, "unable to fetch package source")
	assert.Empty(t, src)

	f, _ = svc.Analyze(ctx, flaky)
	assert.Equal(t, analyzer.StatusError, f.Status)
	assert.Contains(t, f.Error, "connection refused")

	f, _ = svc.Analyze(ctx, open)
	assert.Equal(t, analyzer.StatusError, f.Status)
}

func TestAnalyzeBatch(t *testing.T) {
	a, b, c := canon("0xa"), canon("0xb"), canon("0xc")
	fetcher := &fakeFetcher{
		sources: map[string]string{
			a: "// Module: alpha\npublic fun mint(param: u64) {\n  // Function body\n}\n",
			c: "// Module: gamma\nstruct Cap {\n}\n",
		},
	}
	svc := NewService(fetcher, nil).WithParallelism(2)

	batch, err := svc.AnalyzeBatch(context.Background(), []string{"0xa", "garbage", "0xb", "0xc"})
	require.NoError(t, err)

	assert.Equal(t, 4, batch.Total)
	assert.Equal(t, []string{"garbage"}, batch.Skipped)
	require.Len(t, batch.Findings, 3)
	assert.Equal(t, a, batch.Findings[0].PackageID)
	assert.Equal(t, b, batch.Findings[1].PackageID)
	assert.Equal(t, analyzer.StatusFailed, batch.Findings[1].Status)
	assert.Equal(t, c, batch.Findings[2].PackageID)
	assert.Equal(t, 2, batch.Analyzed())

	assert.True(t, strings.HasPrefix(batch.Source, "// Package: "+a+"\n// Module: alpha"))
	assert.Contains(t, batch.Source, "\n// Package: "+c+"\n// Module: gamma")
	assert.NotContains(t, batch.Source, b)
	assert.Len(t, fetcher.fetched, 3)
}

func TestAnalyzeBatch_SizeLimits(t *testing.T) {
	svc := NewService(&fakeFetcher{}, nil)

	_, err := svc.AnalyzeBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	ids := make([]string, MaxBatch+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("0x%x", i+1)
	}
	_, err = svc.AnalyzeBatch(context.Background(), ids)
	assert.ErrorIs(t, err, ErrBatchTooBig)
}

func TestAnalyzeBatch_AllMalformed(t *testing.T) {
	svc := NewService(&fakeFetcher{}, nil)
	batch, err := svc.AnalyzeBatch(context.Background(), []string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, batch.Findings)
	assert.Empty(t, batch.Source)
	assert.Equal(t, 0, batch.Analyzed())
}
