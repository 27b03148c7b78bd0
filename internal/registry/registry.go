package registry

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/samspacey/bsa-data/internal/models"
)

// FuzzyThreshold is the minimum similarity (0-1) for accepting a fuzzy
// alias match.
const FuzzyThreshold = 0.70

// Registry indexes the canonical organizations and their aliases for
// resolution of free-text names. It is immutable after construction.
type Registry struct {
	byID      map[string]models.Organization
	order     []string
	aliasToID map[string]string
	aliases   []string
}

// New builds a registry from reference data. Canonical names count as
// aliases of their own organization.
func New(orgs []models.Organization) *Registry {
	r := &Registry{
		byID:      make(map[string]models.Organization, len(orgs)),
		aliasToID: make(map[string]string),
	}

	for _, org := range orgs {
		r.byID[org.ID] = org
		r.order = append(r.order, org.ID)

		r.addAlias(org.CanonicalName, org.ID)
		for _, alias := range org.Aliases {
			r.addAlias(alias, org.ID)
		}
	}

	sort.Strings(r.aliases)
	return r
}

func (r *Registry) addAlias(alias, orgID string) {
	normalized := strings.ToLower(strings.TrimSpace(alias))
	if normalized == "" {
		return
	}
	if _, exists := r.aliasToID[normalized]; !exists {
		r.aliases = append(r.aliases, normalized)
	}
	r.aliasToID[normalized] = orgID
}

// Resolve maps a free-text organization name to a canonical ID. Exact
// case-insensitive alias matches win with confidence 1.0; otherwise the best
// fuzzy alias match is accepted when its similarity meets FuzzyThreshold.
// Returns ("", 0) when nothing matches.
func (r *Registry) Resolve(name string) (string, float64) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", 0
	}

	if id, ok := r.aliasToID[normalized]; ok {
		return id, 1.0
	}

	bestAlias := ""
	bestScore := 0.0
	for _, alias := range r.aliases {
		score := similarity(normalized, alias)
		if score > bestScore {
			bestScore = score
			bestAlias = alias
		}
	}

	if bestScore >= FuzzyThreshold {
		return r.aliasToID[bestAlias], bestScore
	}
	return "", 0
}

// similarity is a normalized Levenshtein ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// Get returns an organization by canonical ID.
func (r *Registry) Get(id string) (models.Organization, bool) {
	org, ok := r.byID[id]
	return org, ok
}

// DisplayName returns the canonical name for an ID, or the ID itself when
// unknown.
func (r *Registry) DisplayName(id string) string {
	if org, ok := r.byID[id]; ok {
		return org.CanonicalName
	}
	return id
}

// All returns every organization in registration order.
func (r *Registry) All() []models.Organization {
	orgs := make([]models.Organization, 0, len(r.order))
	for _, id := range r.order {
		orgs = append(orgs, r.byID[id])
	}
	return orgs
}

// AllIDs returns every canonical ID in registration order.
func (r *Registry) AllIDs() []string {
	return append([]string{}, r.order...)
}

// AliasVocabulary returns the full normalized alias list, used to seed the
// external parser.
func (r *Registry) AliasVocabulary() []string {
	return append([]string{}, r.aliases...)
}
