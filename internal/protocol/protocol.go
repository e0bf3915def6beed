// Package protocol classifies newly published Sui packages as belonging to a
// tracked DeFi protocol.
//
// Detectors are consulted in registration order and the first match wins.
// Register higher-specificity detectors first: the generic lending patterns
// overlap between protocols.
package protocol

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Protocol tags.
const (
	Bucket  = "bucket"
	Scallop = "scallop"
	Navi    = "navi"
	Unknown = "unknown"
)

// Detector decides whether a package belongs to one protocol.
type Detector interface {
	ProtocolName() string
	IsMatch(packageID string, modules []string, deployer string) bool
	KnownAddresses() map[string]struct{}
}

// Rules is a Detector driven by fixed address, pattern and keyword lists.
//
// Match precedence: deployer address, module pattern, package address,
// module keyword. Any hit matches.
type Rules struct {
	name      string
	addresses map[string]struct{}
	patterns  []*regexp.Regexp
	keywords  []string
}

// NewRules builds a rule-based detector. Patterns are compiled once and
// must be valid regular expressions.
func NewRules(name string, addresses, patterns, keywords []string) *Rules {
	r := &Rules{
		name:      name,
		addresses: make(map[string]struct{}, len(addresses)),
		keywords:  keywords,
	}
	for _, a := range addresses {
		r.addresses[strings.ToLower(a)] = struct{}{}
	}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

func (r *Rules) ProtocolName() string { return r.name }

func (r *Rules) KnownAddresses() map[string]struct{} {
	out := make(map[string]struct{}, len(r.addresses))
	for a := range r.addresses {
		out[a] = struct{}{}
	}
	return out
}

func (r *Rules) IsMatch(packageID string, modules []string, deployer string) bool {
	if deployer != "" && r.known(deployer) {
		return true
	}

	lowered := make([]string, len(modules))
	for i, m := range modules {
		lowered[i] = strings.ToLower(m)
	}

	for _, m := range lowered {
		for _, p := range r.patterns {
			if p.MatchString(m) {
				return true
			}
		}
	}

	if r.known(packageID) {
		return true
	}

	joined := strings.Join(lowered, " ")
	for _, kw := range r.keywords {
		if strings.Contains(joined, kw) {
			return true
		}
	}
	return false
}

func (r *Rules) known(addr string) bool {
	_, ok := r.addresses[strings.ToLower(addr)]
	return ok
}

// Registry holds detectors in registration order.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// DefaultRegistry registers Bucket, Scallop and Navi, in that order.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(NewBucket())
	r.Register(NewScallop())
	r.Register(NewNavi())
	return r
}

// Register appends a detector. Order of registration is match order.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	r.detectors = append(r.detectors, d)
	r.mu.Unlock()
	r.logger.Debug("protocol detector registered", "protocol", d.ProtocolName())
}

// Identify returns the first matching protocol name, or Unknown.
func (r *Registry) Identify(packageID string, modules []string, deployer string) string {
	r.mu.RLock()
	detectors := make([]Detector, len(r.detectors))
	copy(detectors, r.detectors)
	r.mu.RUnlock()

	for _, d := range detectors {
		if d.IsMatch(packageID, modules, deployer) {
			return d.ProtocolName()
		}
	}
	return Unknown
}

// Protocols lists registered protocol names in match order.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		names[i] = d.ProtocolName()
	}
	return names
}
