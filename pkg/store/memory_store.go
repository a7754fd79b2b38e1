package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"pathwise/pkg/domain"
)

// ErrDuplicateArtifactKey mirrors the unique (plan_id, key) index in Postgres.
var ErrDuplicateArtifactKey = errors.New("duplicate artifact key")

// MemoryStore keeps all records in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	transcripts map[string]domain.Transcript // key: user ID
	plans       map[string]domain.SeriousPlan
	planByUser  map[string]string // user ID -> plan ID
	artifacts   map[string][]domain.PlanArtifact
	chat        map[string][]domain.CoachMessage

	// FailCreateArtifacts forces the next bulk insert to fail, for tests that
	// exercise aborted plan initialization.
	FailCreateArtifacts error
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		transcripts: make(map[string]domain.Transcript),
		plans:       make(map[string]domain.SeriousPlan),
		planByUser:  make(map[string]string),
		artifacts:   make(map[string][]domain.PlanArtifact),
		chat:        make(map[string][]domain.CoachMessage),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) SetUserDisplayName(id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	u.DisplayName = name
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

func (m *MemoryStore) SaveTranscript(t domain.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.transcripts[t.UserID]; ok {
		// Dossier is only written through SetDossier; keep it on replace.
		t.ID = existing.ID
		t.Dossier = existing.Dossier
		t.CreatedAt = existing.CreatedAt
	}
	m.transcripts[t.UserID] = t
	return nil
}

func (m *MemoryStore) GetTranscriptByUser(userID string) (domain.Transcript, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transcripts[userID]
	return t, ok, nil
}

func (m *MemoryStore) SetDossier(userID string, d domain.Dossier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[userID]
	if !ok {
		return nil
	}
	t.Dossier = &d
	t.UpdatedAt = time.Now().UTC()
	m.transcripts[userID] = t
	return nil
}

func (m *MemoryStore) SetPaymentVerified(userID string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[userID]
	if !ok {
		return nil
	}
	t.PaymentVerified = verified
	t.UpdatedAt = time.Now().UTC()
	m.transcripts[userID] = t
	return nil
}

func (m *MemoryStore) CreatePlan(p domain.SeriousPlan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.planByUser[p.UserID]; exists {
		return false, nil
	}
	m.plans[p.ID] = p
	m.planByUser[p.UserID] = p.ID
	return true, nil
}

func (m *MemoryStore) GetPlan(id string) (domain.SeriousPlan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	return p, ok, nil
}

func (m *MemoryStore) GetPlanByUser(userID string) (domain.SeriousPlan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.planByUser[userID]
	if !ok {
		return domain.SeriousPlan{}, false, nil
	}
	p, ok := m.plans[id]
	return p, ok, nil
}

func (m *MemoryStore) SetPlanStatus(id string, status domain.PlanStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	m.plans[id] = p
	return nil
}

func (m *MemoryStore) SetPlanSummary(id string, clientName, tone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil
	}
	if clientName != "" {
		p.ClientName = clientName
	}
	if tone != "" {
		p.Tone = tone
	}
	p.UpdatedAt = time.Now().UTC()
	m.plans[id] = p
	return nil
}

func (m *MemoryStore) SetLetter(planID string, status domain.ArtifactStatus, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok {
		return nil
	}
	p.LetterStatus = status
	if content != "" {
		p.LetterContent = content
	}
	p.UpdatedAt = time.Now().UTC()
	m.plans[planID] = p
	return nil
}

func (m *MemoryStore) SetBundlePDF(planID string, status domain.PDFStatus, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok {
		return nil
	}
	p.BundlePDFStatus = status
	if url != "" {
		p.BundlePDFURL = url
	}
	p.UpdatedAt = time.Now().UTC()
	m.plans[planID] = p
	return nil
}

func (m *MemoryStore) CreateArtifacts(artifacts []domain.PlanArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateArtifacts != nil {
		err := m.FailCreateArtifacts
		m.FailCreateArtifacts = nil
		return err
	}
	for _, a := range artifacts {
		for _, existing := range m.artifacts[a.PlanID] {
			if existing.Key == a.Key {
				return ErrDuplicateArtifactKey
			}
		}
		m.artifacts[a.PlanID] = append(m.artifacts[a.PlanID], a)
	}
	return nil
}

func (m *MemoryStore) ListArtifacts(planID string) ([]domain.PlanArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]domain.PlanArtifact, len(m.artifacts[planID]))
	copy(items, m.artifacts[planID])
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DisplayOrder < items[j].DisplayOrder
	})
	return items, nil
}

func (m *MemoryStore) GetArtifactByKey(planID, key string) (domain.PlanArtifact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.artifacts[planID] {
		if a.Key == key {
			return a, true, nil
		}
	}
	return domain.PlanArtifact{}, false, nil
}

func (m *MemoryStore) MarkArtifacts(planID string, from, to domain.ArtifactStatus) ([]domain.PlanArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var marked []domain.PlanArtifact
	items := m.artifacts[planID]
	for i, a := range items {
		if a.Status == from {
			items[i].Status = to
			items[i].UpdatedAt = time.Now().UTC()
			marked = append(marked, items[i])
		}
	}
	sort.SliceStable(marked, func(i, j int) bool {
		return marked[i].DisplayOrder < marked[j].DisplayOrder
	})
	return marked, nil
}

func (m *MemoryStore) SetArtifactStatus(planID, key string, status domain.ArtifactStatus) error {
	return m.updateArtifact(planID, key, func(a *domain.PlanArtifact) {
		a.Status = status
	})
}

func (m *MemoryStore) SetArtifactResult(planID, key, title, importance, whyImportant, content string) error {
	return m.updateArtifact(planID, key, func(a *domain.PlanArtifact) {
		a.Status = domain.ArtifactComplete
		a.Content = content
		if title != "" {
			a.Title = title
		}
		if importance != "" {
			a.Importance = importance
		}
		if whyImportant != "" {
			a.WhyImportant = whyImportant
		}
	})
}

func (m *MemoryStore) SetArtifactContent(planID, key, content string, status domain.ArtifactStatus) error {
	return m.updateArtifact(planID, key, func(a *domain.PlanArtifact) {
		a.Content = content
		a.Status = status
	})
}

func (m *MemoryStore) SetArtifactPDF(planID, key string, status domain.PDFStatus, url string) error {
	return m.updateArtifact(planID, key, func(a *domain.PlanArtifact) {
		a.PDFStatus = status
		if url != "" {
			a.PDFURL = url
		}
	})
}

func (m *MemoryStore) updateArtifact(planID, key string, fn func(*domain.PlanArtifact)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.artifacts[planID]
	for i := range items {
		if items[i].Key == key {
			fn(&items[i])
			items[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) AppendCoachMessage(msg domain.CoachMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat[msg.PlanID] = append(m.chat[msg.PlanID], msg)
	return nil
}

func (m *MemoryStore) ListCoachMessages(planID string, limit int) ([]domain.CoachMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.chat[planID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	res := make([]domain.CoachMessage, len(msgs))
	copy(res, msgs)
	return res, nil
}
