// Package signals provides the built-in implementations of the external
// signal-source ports: a prefix-table carrier lookup and list-file backed
// spam-database and do-not-call checks. Production deployments swap these
// for adapters against the real upstream services.
package signals

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/core"
)

// CarrierEntry is one configured prefix-to-carrier mapping.
type CarrierEntry struct {
	Prefix   string
	Name     string
	Type     string
	Country  string
	IsMobile bool
}

// StaticCarrierLookup resolves carriers from a configured prefix table,
// longest prefix wins. Numbers with no matching prefix resolve to an
// unknown domestic landline.
type StaticCarrierLookup struct {
	entries []CarrierEntry
	logger  *zap.Logger
}

// NewStaticCarrierLookup creates a prefix-table carrier lookup.
func NewStaticCarrierLookup(entries []CarrierEntry, logger *zap.Logger) *StaticCarrierLookup {
	return &StaticCarrierLookup{entries: entries, logger: logger}
}

func (l *StaticCarrierLookup) Lookup(ctx context.Context, number string) (*core.CarrierInfo, error) {
	var best *CarrierEntry
	for i := range l.entries {
		entry := &l.entries[i]
		if !strings.HasPrefix(number, entry.Prefix) {
			continue
		}
		if best == nil || len(entry.Prefix) > len(best.Prefix) {
			best = entry
		}
	}
	if best == nil {
		return &core.CarrierInfo{Name: "unknown", Type: "landline", Country: "US"}, nil
	}
	return &core.CarrierInfo{
		Name:     best.Name,
		Type:     best.Type,
		Country:  best.Country,
		IsMobile: best.IsMobile,
	}, nil
}

// ListSpamDatabase answers spam-database checks from an in-memory number
// set, typically loaded from a published list file.
type ListSpamDatabase struct {
	mu      sync.RWMutex
	numbers map[string]struct{}
	logger  *zap.Logger
}

// NewListSpamDatabase creates a spam database over the given numbers.
func NewListSpamDatabase(numbers []string, logger *zap.Logger) *ListSpamDatabase {
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		set[strings.TrimSpace(n)] = struct{}{}
	}
	if len(set) > 0 {
		logger.Info("Loaded spam database entries", zap.Int("count", len(set)))
	}
	return &ListSpamDatabase{numbers: set, logger: logger}
}

func (d *ListSpamDatabase) Check(ctx context.Context, number string) (*core.SpamDatabaseResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.numbers[number]; ok {
		return &core.SpamDatabaseResult{IsSpam: true, Details: "listed in national spam database"}, nil
	}
	return &core.SpamDatabaseResult{}, nil
}

// Update replaces the number set, for periodic list refreshes.
func (d *ListSpamDatabase) Update(numbers []string) {
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		set[strings.TrimSpace(n)] = struct{}{}
	}
	d.mu.Lock()
	d.numbers = set
	d.mu.Unlock()
}

// ListDncRegistry answers do-not-call checks from an in-memory number set.
// Per the DncCheck contract it never returns an error: any internal problem
// defaults to "not registered".
type ListDncRegistry struct {
	mu      sync.RWMutex
	numbers map[string]struct{}
	logger  *zap.Logger
}

// NewListDncRegistry creates a do-not-call registry over the given numbers.
func NewListDncRegistry(numbers []string, logger *zap.Logger) *ListDncRegistry {
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		set[strings.TrimSpace(n)] = struct{}{}
	}
	return &ListDncRegistry{numbers: set, logger: logger}
}

func (r *ListDncRegistry) Check(ctx context.Context, number string) (*core.DncResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.numbers[number]; ok {
		return &core.DncResult{IsRegistered: true}, nil
	}
	return &core.DncResult{}, nil
}
