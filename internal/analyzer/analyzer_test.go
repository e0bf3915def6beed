package analyzer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vaultSource = "// Module: vault\n" +
	"struct Vault {\n" +
	"  balance: u64,\n" +
	"}\n" +
	"\n" +
	"public entry fun withdraw_all(param: Vault) {\n" +
	"  // Function body\n" +
	"}\n" +
	"\n" +
	"public fun transfer(param: address) {\n" +
	"  // Function body\n" +
	"}\n"

func TestAnalyze_Vault(t *testing.T) {
	f := Analyze(vaultSource, "0xabc")

	require.Equal(t, StatusSuccess, f.Status)
	assert.Equal(t, "0xabc", f.PackageID)
	assert.Equal(t, []string{"transfer(", "withdraw_all("}, f.DangerousFunctions)
	assert.Equal(t, []string{"withdraw_all"}, f.SuspiciousCalls)
	assert.Empty(t, f.HighRiskKeywords)
	assert.Equal(t, PermissionLow, f.PermissionLevel)
	assert.Equal(t, 13, f.SourceLines)
	assert.Equal(t, 1, f.ModuleCount)
	// 13 lines + 2 functions*10 + 1 struct*5
	assert.Equal(t, 38, f.ComplexityScore)
	assert.ElementsMatch(t, []string{"withdraw_all", "transfer"}, f.EntryFunctions)
}

func TestAnalyze_EmptySourceFails(t *testing.T) {
	f := Analyze("", "0x1")
	assert.Equal(t, StatusFailed, f.Status)
	assert.NotEmpty(t, f.Error)
	assert.False(t, f.OK())
}

func TestAnalyze_WhitespaceSourceIsClean(t *testing.T) {
	f := Analyze("   \n\t", "0x1")
	assert.Equal(t, StatusSuccess, f.Status)
	assert.Empty(t, f.Error)
	assert.Empty(t, f.DangerousFunctions)
	assert.Equal(t, PermissionLow, f.PermissionLevel)
}

func TestAnalyze_KeywordsCaseInsensitive(t *testing.T) {
	f := Analyze("// BACKDOOR here\nfun Drain() {}", "0x1")

	assert.Equal(t, []string{"backdoor", "drain"}, f.HighRiskKeywords)
	// suspicious calls are case-sensitive
	assert.Empty(t, f.SuspiciousCalls)
}

func TestAnalyze_PermissionLevels(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   PermissionLevel
	}{
		{"low", "fun noop() {}", PermissionLow},
		{"medium", "transfer( withdraw( burn( mint( destroy(", PermissionMedium},
		{"high", strings.Join(dangerousFunctions, " "), PermissionHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Analyze(tt.source, "0x1")
			assert.Equal(t, tt.want, f.PermissionLevel, "total matches %d", f.TotalMatches())
		})
	}
}

func TestAnalyze_AllListsScanned(t *testing.T) {
	f := Analyze(strings.Join(dangerousFunctions, " "), "0x1")

	assert.Len(t, f.DangerousFunctions, len(dangerousFunctions))
	assert.Contains(t, f.SuspiciousCalls, "withdraw_all")
	assert.Contains(t, f.SuspiciousCalls, "transfer_all")
	assert.Contains(t, f.SuspiciousCalls, "approve_all")
}

func TestEntryFunctions_Deduplicated(t *testing.T) {
	src := "entry fun claim() {}\npublic fun claim() {}\npublic fun  view() {}\nfun private_one() {}"
	assert.ElementsMatch(t, []string{"claim", "view"}, EntryFunctions(src))
}

func TestComplexityScore_Empty(t *testing.T) {
	assert.Equal(t, 0, ComplexityScore(""))
}

func TestErrored(t *testing.T) {
	f := Errored("0x9", errors.New("boom"))
	assert.Equal(t, StatusError, f.Status)
	assert.Equal(t, "boom", f.Error)

	f = Errored("0x9", nil)
	assert.Equal(t, "analysis failed", f.Error)
}
