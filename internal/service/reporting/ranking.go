package reporting

import (
	"sort"
	"time"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/ticket"
)

// DefaultTopN is the catalog ranking size when none is configured
const DefaultTopN = 10

// Unresolved returns every still-open ticket, carry-over included, oldest
// first so the longest-outstanding items surface at the top. Ties on
// creation instant break by reference for deterministic output.
func Unresolved(records []*ticket.Ticket) []*ticket.Ticket {
	out := make([]*ticket.Ticket, 0)
	for _, t := range records {
		if t.IsUnresolved() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].Ref < out[b].Ref
	})
	return out
}

// Breaches returns every ticket with a missed SLA deadline, worst overage
// first. A ticket breaching both deadlines ranks by the larger overage.
func Breaches(records []*ticket.Ticket) []*ticket.Ticket {
	out := make([]*ticket.Ticket, 0)
	for _, t := range records {
		if t.Breached() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		oa, ob := out[a].WorstOverage(), out[b].WorstOverage()
		if oa != ob {
			return oa > ob
		}
		return out[a].Ref < out[b].Ref
	})
	return out
}

// CatalogRank is one row of the top-N catalog ranking
type CatalogRank struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Unresolved int    `json:"unresolved"`
	Breached   int    `json:"breached"`
	Combined   int    `json:"combined"`
}

// TopCatalog ranks service catalog entries by how many unresolved or
// breached tickets they carry. A ticket that is both unresolved and
// breached counts once toward the combined total. The result is ordered
// by combined count descending, ties by key, truncated to n.
func TopCatalog(records []*ticket.Ticket, n int) []CatalogRank {
	if n <= 0 {
		n = DefaultTopN
	}
	ranks := make(map[string]*CatalogRank)
	for _, t := range records {
		unresolved := t.IsUnresolved()
		breached := t.Breached()
		if !unresolved && !breached {
			continue
		}
		key, label := UncategorizedKey, UncategorizedLbl
		if t.CatalogEntry != nil {
			key, label = t.CatalogEntry.Key, t.CatalogEntry.Display()
		}
		r, ok := ranks[key]
		if !ok {
			r = &CatalogRank{Key: key, Label: label}
			ranks[key] = r
		}
		if unresolved {
			r.Unresolved++
		}
		if breached {
			r.Breached++
		}
		r.Combined++
	}

	out := make([]CatalogRank, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, *r)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Combined != out[b].Combined {
			return out[a].Combined > out[b].Combined
		}
		return out[a].Key < out[b].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Exceptions bundles the three exception views one report run needs
type Exceptions struct {
	Unresolved []*ticket.Ticket `json:"unresolved"`
	Breaches   []*ticket.Ticket `json:"breaches"`
	TopCatalog []CatalogRank    `json:"top_catalog"`
	// AsOf is the generation instant unresolved ages are measured against.
	AsOf time.Time `json:"as_of"`
}

// FindExceptions computes all three exception views in one pass context.
// Like the other analyzers it only reads the record set.
func FindExceptions(records []*ticket.Ticket, topN int, asOf time.Time) *Exceptions {
	return &Exceptions{
		Unresolved: Unresolved(records),
		Breaches:   Breaches(records),
		TopCatalog: TopCatalog(records, topN),
		AsOf:       asOf,
	}
}
