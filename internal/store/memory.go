package store

import (
	"sort"
	"sync"

	"github.com/nlabs/audiobible/internal/domain"
)

// MemoryStore is an in-memory domain.Store. It backs the no-persistence
// mode and is the last-resort stand-in when the on-disk store cannot be
// recreated: reads return empty, writes succeed, nothing survives the
// process.
type MemoryStore struct {
	mu     sync.RWMutex
	audio  map[string]*domain.CachedAudio
	plans  map[string]*domain.Plan
	bibles map[string]*domain.BibleVersion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		audio:  make(map[string]*domain.CachedAudio),
		plans:  make(map[string]*domain.Plan),
		bibles: make(map[string]*domain.BibleVersion),
	}
}

// === Cached audio ===

func (s *MemoryStore) PutAudio(entry *domain.CachedAudio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.audio[entry.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAudio(key string) (*domain.CachedAudio, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.audio[key]
	if !ok {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

func (s *MemoryStore) DeleteAudio(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.audio, key)
	return nil
}

func (s *MemoryStore) AudioKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.audio))
	for k := range s.audio {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryStore) AudioByDownloadTime() []*domain.CachedAudio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*domain.CachedAudio, 0, len(s.audio))
	for _, e := range s.audio {
		cp := *e
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DownloadedAt != entries[j].DownloadedAt {
			return entries[i].DownloadedAt < entries[j].DownloadedAt
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

func (s *MemoryStore) AudioCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audio)
}

func (s *MemoryStore) ClearAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = make(map[string]*domain.CachedAudio)
	return nil
}

// === Reading plans ===

func (s *MemoryStore) PutPlan(plan *domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clonePlan(plan)
	s.plans[plan.ID] = cp
	return nil
}

func (s *MemoryStore) GetPlan(id string) (*domain.Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, false
	}
	return clonePlan(plan), true
}

func (s *MemoryStore) AllPlans() []*domain.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plans := make([]*domain.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, clonePlan(p))
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans
}

func (s *MemoryStore) DeletePlan(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, id)
	return nil
}

// === Bible versions ===

func (s *MemoryStore) PutBible(v *domain.BibleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	cp.Books = append([]domain.BibleBook(nil), v.Books...)
	s.bibles[v.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBible(id string) (*domain.BibleVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.bibles[id]
	if !ok {
		return nil, false
	}
	cp := *v
	cp.Books = append([]domain.BibleBook(nil), v.Books...)
	return &cp, true
}

func (s *MemoryStore) AllBibles() []*domain.BibleVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := make([]*domain.BibleVersion, 0, len(s.bibles))
	for _, v := range s.bibles {
		cp := *v
		cp.Books = append([]domain.BibleBook(nil), v.Books...)
		versions = append(versions, &cp)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ID < versions[j].ID })
	return versions
}

func (s *MemoryStore) DeleteBible(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bibles, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// clonePlan deep-copies a plan so callers cannot mutate stored state.
func clonePlan(p *domain.Plan) *domain.Plan {
	cp := *p
	cp.Goals = make([]domain.DailyGoal, len(p.Goals))
	for i, g := range p.Goals {
		cg := g
		cg.Portions = append([]domain.ReadingPortion(nil), g.Portions...)
		cp.Goals[i] = cg
	}
	return &cp
}
