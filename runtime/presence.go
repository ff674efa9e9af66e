package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"lanshare/repositories"
)

// Presence tracks which identities are online right now. The in-memory
// set is authoritative for the live session; the identity repository is
// updated best effort so the flag survives restarts.
type Presence struct {
	mu         sync.RWMutex
	online     map[string]struct{}
	identities repositories.IIdentityRepository
	log        *slog.Logger
}

func NewPresence(identities repositories.IIdentityRepository, log *slog.Logger) *Presence {
	return &Presence{
		online:     make(map[string]struct{}),
		identities: identities,
		log:        log,
	}
}

func (p *Presence) MarkOnline(_ context.Context, identity string) {
	p.mu.Lock()
	p.online[identity] = struct{}{}
	p.mu.Unlock()

	if err := p.identities.SetOnline(identity, true); err != nil {
		p.log.Warn("Failed to persist online flag", "identity", identity, "error", err)
	}
}

func (p *Presence) MarkOffline(_ context.Context, identity string) {
	p.mu.Lock()
	delete(p.online, identity)
	p.mu.Unlock()

	if err := p.identities.SetOnline(identity, false); err != nil {
		p.log.Warn("Failed to persist offline flag", "identity", identity, "error", err)
	}
}

func (p *Presence) ListOnline() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.online))
	for name := range p.online {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
