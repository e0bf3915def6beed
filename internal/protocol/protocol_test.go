package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	scallopMarket = "0xefe8b36d5b2e43728cc323298626b83177803521d195cfb11e15b910e892fddf"
	sharedAddress = "0xd899cf7d2b5db716bd2cf55599fb0d5ee38a3061e7b6bb6eebf73fa5bc4c81ca"
	strangerAddr  = "0x0000000000000000000000000000000000000000000000000000000000000abc"
)

func TestIdentify(t *testing.T) {
	reg := DefaultRegistry(nil)

	tests := []struct {
		name     string
		pkg      string
		modules  []string
		deployer string
		want     string
	}{
		{"bucket module", strangerAddr, []string{"BucketVault"}, "", Bucket},
		{"generic lending hits first registered", strangerAddr, []string{"lending"}, "", Bucket},
		{"scallop address", scallopMarket, nil, "", Scallop},
		{"scallop deployer", strangerAddr, []string{"oracle"}, scallopMarket, Scallop},
		{"spool module", strangerAddr, []string{"spool"}, "", Scallop},
		{"navi vault", strangerAddr, []string{"vault"}, "", Navi},
		{"nothing matches", strangerAddr, []string{"oracle", "coin"}, "", Unknown},
		{"no modules", strangerAddr, nil, "", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Identify(tt.pkg, tt.modules, tt.deployer))
		})
	}
}

func TestIdentify_SharedAddressFirstRegisteredWins(t *testing.T) {
	// sharedAddress is listed by both Scallop and Navi.
	reg := DefaultRegistry(nil)
	assert.Equal(t, Scallop, reg.Identify(sharedAddress, nil, ""))

	a := NewRules("alpha", []string{strangerAddr}, nil, nil)
	b := NewRules("beta", []string{strangerAddr}, nil, nil)

	ab := NewRegistry(nil)
	ab.Register(a)
	ab.Register(b)
	assert.Equal(t, "alpha", ab.Identify(strangerAddr, nil, ""))

	ba := NewRegistry(nil)
	ba.Register(b)
	ba.Register(a)
	assert.Equal(t, "beta", ba.Identify(strangerAddr, nil, ""))
}

func TestRules_AddressCaseInsensitive(t *testing.T) {
	r := NewScallop()
	assert.True(t, r.IsMatch("0xEFE8B36D5B2E43728CC323298626B83177803521D195CFB11E15B910E892FDDF", nil, ""))
}

func TestRules_KnownAddressesIsCopy(t *testing.T) {
	r := NewBucket()
	addrs := r.KnownAddresses()
	assert.Len(t, addrs, 4)

	delete(addrs, "0x155a2b4a924288070dc6cced78e6af9e244c654294a9863aa4b4544ccdedcb0f")
	assert.Len(t, r.KnownAddresses(), 4)
}

func TestRegistry_Protocols(t *testing.T) {
	assert.Equal(t, []string{Bucket, Scallop, Navi}, DefaultRegistry(nil).Protocols())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Navi Protocol", DisplayName(Navi))
	assert.Equal(t, "OTHER", DisplayName("other"))
	assert.InDelta(t, 0.7, Known[Bucket].RiskThreshold, 1e-9)
}

func TestInfo_Exceeds(t *testing.T) {
	assert.True(t, Lookup(Bucket).Exceeds(71))
	assert.False(t, Lookup(Bucket).Exceeds(70))
	assert.True(t, Lookup(Scallop).Exceeds(61))
	assert.False(t, Lookup(Unknown).Exceeds(100), "no threshold")
}
