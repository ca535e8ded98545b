package store

import (
	"log/slog"

	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/normalize"
)

// BusinessIndex provides lookup of already-migrated business entities by
// email, normalized owner name, and non-free email domain. Built once per
// run; the matching strategies read it and never mutate it.
type BusinessIndex struct {
	ByEmail     map[string]*domain.Business
	ByOwnerName map[string]*domain.Business
	ByDomain    map[string][]*domain.Business
	Stats       BusinessIndexStats
}

// BusinessIndexStats describes what made it into the index.
type BusinessIndexStats struct {
	Total           int
	UniqueEmails    int
	UniqueDomains   int
	FreeDomainSkips int
}

// BuildBusinessIndex constructs the three maps from migrated business
// entities. First occurrence wins for email and owner-name duplicates; the
// domain map keeps every business so the domain strategy can detect
// ambiguity (count != 1 means no match).
func BuildBusinessIndex(businesses []*domain.Business, logger *slog.Logger) *BusinessIndex {
	if logger == nil {
		logger = slog.Default()
	}

	index := &BusinessIndex{
		ByEmail:     make(map[string]*domain.Business, len(businesses)),
		ByOwnerName: make(map[string]*domain.Business, len(businesses)),
		ByDomain:    make(map[string][]*domain.Business, len(businesses)),
	}

	for _, biz := range businesses {
		if email, ok := normalize.Email(biz.Email); ok {
			if _, exists := index.ByEmail[email]; !exists {
				index.ByEmail[email] = biz
			}
			if dom, ok := normalize.Domain(email); ok {
				index.ByDomain[dom] = append(index.ByDomain[dom], biz)
			} else {
				index.Stats.FreeDomainSkips++
			}
		}

		if name := normalize.Name(biz.OwnerName); name != "" {
			if _, exists := index.ByOwnerName[name]; !exists {
				index.ByOwnerName[name] = biz
			}
		}
	}

	index.Stats.Total = len(businesses)
	index.Stats.UniqueEmails = len(index.ByEmail)
	index.Stats.UniqueDomains = len(index.ByDomain)

	logger.Info("business index built",
		slog.Int("businesses", index.Stats.Total),
		slog.Int("unique_emails", index.Stats.UniqueEmails),
		slog.Int("unique_domains", index.Stats.UniqueDomains),
		slog.Int("free_domain_skips", index.Stats.FreeDomainSkips),
	)

	return index
}
