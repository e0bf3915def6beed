package protocol

import "strings"

// Info describes a tracked protocol for notifications.
type Info struct {
	Name          string
	Description   string
	RiskThreshold float64
}

// Known holds display metadata for the tracked protocols.
var Known = map[string]Info{
	Bucket:  {Name: "Bucket Protocol", Description: "Liquidity mining protocol", RiskThreshold: 0.7},
	Scallop: {Name: "Scallop Protocol", Description: "Lending protocol", RiskThreshold: 0.6},
	Navi:    {Name: "Navi Protocol", Description: "DeFi protocol", RiskThreshold: 0.6},
}

// Lookup returns the metadata for a protocol tag. Unknown tags get their
// upper-cased tag as name and no threshold.
func Lookup(tag string) Info {
	if info, ok := Known[tag]; ok {
		return info
	}
	return Info{Name: strings.ToUpper(tag)}
}

// DisplayName returns the human-readable name for a protocol tag.
func DisplayName(tag string) string {
	return Lookup(tag).Name
}

// Exceeds reports whether a 0-100 risk score is above the protocol's alert
// threshold. Protocols without a threshold never exceed it.
func (i Info) Exceeds(score100 int) bool {
	return i.RiskThreshold > 0 && float64(score100)/100 > i.RiskThreshold
}

// NewBucket returns the Bucket Protocol detector.
func NewBucket() *Rules {
	return NewRules(Bucket,
		[]string{
			"0x155a2b4a924288070dc6cced78e6af9e244c654294a9863aa4b4544ccdedcb0f",
			"0xce7c4460ee50d5c1bb1d7d5c1e4a3b9c3e9c6e7a2f1d3b5e8c4f7a1e3c6d9b2",
			"0xb51c3f8b7a4a2e4c9d2f7e1a3b6c5d8e7f0a9b2c5e8f1a4d7c0b3e6f9a2d5c8",
			"0xa6d3e73f6a8b2c5e1f4a7b0c3d6e9f2a5b8c1e4f7a0d3e6b9c2f5a8e1b4d7c",
		},
		[]string{
			`.*bucket.*`,
			`.*buck.*`,
			`.*lending.*`,
			`.*borrow.*`,
			`.*collateral.*`,
			`.*liquidity.*`,
		},
		[]string{"bucket", "collateral", "buck"},
	)
}

// NewScallop returns the Scallop Protocol detector.
func NewScallop() *Rules {
	return NewRules(Scallop,
		[]string{
			"0xefe8b36d5b2e43728cc323298626b83177803521d195cfb11e15b910e892fddf",
			"0x07871c4b3c847a0f674510d4978d5cf6f960452795e8ff6f189fd2088a3f47dc",
			"0xa757975255146dc9686aa823b7838b507f315d704f428cbadad2f4ea061939d9",
			"0xd899cf7d2b5db716bd2cf55599fb0d5ee38a3061e7b6bb6eebf73fa5bc4c81ca",
			"0x96c73d51a2f8b05b8d6f31e7a9d2b3c4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b",
		},
		[]string{
			`.*scallop.*`,
			`.*sca.*`,
			`.*lending.*`,
			`.*pool.*`,
			`.*market.*`,
			`.*spool.*`,
			`.*borrow.*`,
		},
		[]string{"scallop", "spool", "sca"},
	)
}

// NewNavi returns the Navi Protocol detector.
func NewNavi() *Rules {
	return NewRules(Navi,
		[]string{
			"0xd899cf7d2b5db716bd2cf55599fb0d5ee38a3061e7b6bb6eebf73fa5bc4c81ca",
			"0xa02a98f9c88db51c6f5efaaf2261c81f34dd56d86073387e0ef1805ca22e39c8",
			"0x05e5a49d83fb863caf5a3b1b95bb7b9f4df8a6c8c0b1b3e6c3e6d0e4a2c0c7a2",
			"0xf2b1c8e7d4a9f6e3c0b7d2a5f8e1c4b9d6e3f0a7c2e5b8f1a4d7c0b3e6f9a2",
			"0x1e4f7a0d3e6b9c2f5a8e1b4d7c0a3f6e9b2d5c8f1a4b7e0c3d6f9a2e5b8c1",
		},
		[]string{
			`.*navi.*`,
			`.*navigation.*`,
			`.*lending.*`,
			`.*protocol.*`,
			`.*vault.*`,
			`.*borrow.*`,
			`.*pool.*`,
		},
		[]string{"navi", "navigation", "lending", "vault"},
	)
}
