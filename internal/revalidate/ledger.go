// Package revalidate tracks view generations so read endpoints can answer
// conditional requests. Commands bump the generation of every path they
// touch; the HTTP layer turns generations into ETags.
package revalidate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// PollsPath is the poll list view.
const PollsPath = "/polls"

// PollPath is the detail view of one poll.
func PollPath(id uuid.UUID) string { return PollsPath + "/" + id.String() }

// Ledger is a concurrency-safe map of path -> generation. The zero value is
// not usable; call NewLedger.
type Ledger struct {
	mu    sync.Mutex
	epoch string
	gens  map[string]uint64
}

// NewLedger starts a ledger with a fresh epoch so tags from a previous process
// never match.
func NewLedger() *Ledger {
	return &Ledger{epoch: uuid.Must(uuid.NewV4()).String()[:8], gens: map[string]uint64{}}
}

// Invalidate bumps each path and all of its ancestors, since a parent view
// (the list) summarizes its children.
func (l *Ledger) Invalidate(paths ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{}, len(paths)*2)
	for _, p := range paths {
		for _, a := range lineage(p) {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			l.gens[a]++
		}
	}
}

// Generation returns the current generation of path.
func (l *Ledger) Generation(path string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gens[clean(path)]
}

// ETag returns a strong entity tag for path. variant separates
// representations of the same path (for example per viewer).
func (l *Ledger) ETag(path, variant string) string {
	g := l.Generation(path)
	if variant == "" {
		return fmt.Sprintf(`"%s-%d"`, l.epoch, g)
	}
	return fmt.Sprintf(`"%s-%d-%s"`, l.epoch, g, variant)
}

// Match reports whether an If-None-Match header value matches tag.
func Match(ifNoneMatch, tag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, c := range strings.Split(ifNoneMatch, ",") {
		c = strings.TrimPrefix(strings.TrimSpace(c), "W/")
		if c == "*" || c == tag {
			return true
		}
	}
	return false
}

func clean(p string) string {
	if p != "/" {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// lineage returns p and its ancestors, deepest first, stopping before "/".
func lineage(p string) []string {
	p = clean(p)
	var out []string
	for p != "" && p != "/" {
		out = append(out, p)
		i := strings.LastIndex(p, "/")
		if i <= 0 {
			break
		}
		p = p[:i]
	}
	return out
}
