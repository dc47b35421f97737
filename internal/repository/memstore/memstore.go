// Package memstore is an in-memory repository.Store used by tests and by
// STORE_BACKEND=memory local runs. Every read returns a copy.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/repository"

	"github.com/google/uuid"
)

type eventKey struct{ provider, id string }

type Store struct {
	mu sync.RWMutex

	projects      map[uuid.UUID]*models.Project
	transitions   []models.StatusTransition
	files         map[uuid.UUID]*models.ProjectFile
	forms         map[uuid.UUID]*models.FormSubmission
	payments      map[string]*models.RevisionPayment
	cards         map[uuid.UUID]*models.WorkflowCard
	tokens        map[string]*models.ServiceToken
	states        map[string]*models.OAuthState
	subscriptions map[uuid.UUID]*models.Subscription
	events        map[eventKey]string

	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		projects:      make(map[uuid.UUID]*models.Project),
		files:         make(map[uuid.UUID]*models.ProjectFile),
		forms:         make(map[uuid.UUID]*models.FormSubmission),
		payments:      make(map[string]*models.RevisionPayment),
		cards:         make(map[uuid.UUID]*models.WorkflowCard),
		tokens:        make(map[string]*models.ServiceToken),
		states:        make(map[string]*models.OAuthState),
		subscriptions: make(map[uuid.UUID]*models.Subscription),
		events:        make(map[eventKey]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Projects

func (s *Store) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := s.projects[p.ID]; ok {
		return repository.ErrConflict
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *Store) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProjectsByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Project
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) FindProjectByFolder(_ context.Context, folderID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.MediaFolderID.Valid && p.MediaFolderID.String == folderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CountProjectsSince(_ context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.projects {
		if p.OwnerID == ownerID && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) updateProject(id uuid.UUID, fn func(p *models.Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(p)
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetFolders(_ context.Context, id uuid.UUID, userFolderID, projectFolderID string) error {
	return s.updateProject(id, func(p *models.Project) {
		p.MediaUserFolderID = sql.NullString{String: userFolderID, Valid: userFolderID != ""}
		p.MediaFolderID = sql.NullString{String: projectFolderID, Valid: projectFolderID != ""}
	})
}

func (s *Store) SetReviewLink(_ context.Context, id uuid.UUID, link models.ReviewLink) error {
	return s.updateProject(id, func(p *models.Project) { p.ReviewLink = link })
}

func (s *Store) SetWorkflowCardID(_ context.Context, id uuid.UUID, cardID string) error {
	return s.updateProject(id, func(p *models.Project) {
		p.WorkflowCardID = sql.NullString{String: cardID, Valid: cardID != ""}
	})
}

func (s *Store) TransitionStatus(_ context.Context, t *models.StatusTransition, markSubmission bool) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[t.ProjectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != t.From {
		return nil, repository.ErrStaleStatus
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	p.Status = t.To
	p.UpdatedAt = t.CreatedAt
	if markSubmission {
		p.LastSubmissionAt = sql.NullTime{Time: t.CreatedAt, Valid: true}
	}
	s.transitions = append(s.transitions, *t)
	cp := *p
	return &cp, nil
}

func (s *Store) ListTransitions(_ context.Context, projectID uuid.UUID) ([]models.StatusTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.StatusTransition
	for _, t := range s.transitions {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Files

func (s *Store) UpsertFile(_ context.Context, f *models.ProjectFile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.files {
		if existing.ProjectID == f.ProjectID && existing.AssetID == f.AssetID {
			*f = *existing
			return false, nil
		}
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = s.now()
	if f.UploadedAt.IsZero() {
		f.UploadedAt = f.CreatedAt
	}
	cp := *f
	s.files[f.ID] = &cp
	return true, nil
}

func (s *Store) ListFiles(_ context.Context, projectID uuid.UUID) ([]models.ProjectFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ProjectFile
	for _, f := range s.files {
		if f.ProjectID == projectID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (s *Store) GetFile(_ context.Context, projectID, fileID uuid.UUID) (*models.ProjectFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok || f.ProjectID != projectID {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *Store) SetFileShareURL(_ context.Context, fileID uuid.UUID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return repository.ErrNotFound
	}
	f.ShareURL = sql.NullString{String: url, Valid: url != ""}
	return nil
}

// Forms

func (s *Store) UpsertForm(_ context.Context, f *models.FormSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.forms[f.ProjectID]; ok {
		f.SubmittedAt = existing.SubmittedAt
	} else if f.SubmittedAt.IsZero() {
		f.SubmittedAt = now
	}
	f.UpdatedAt = now
	cp := *f
	s.forms[f.ProjectID] = &cp
	return nil
}

func (s *Store) GetForm(_ context.Context, projectID uuid.UUID) (*models.FormSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forms[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// Payments

func (s *Store) CreatePayment(_ context.Context, p *models.RevisionPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.CheckoutSessionID]; ok {
		return repository.ErrConflict
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = s.now()
	cp := *p
	s.payments[p.CheckoutSessionID] = &cp
	return nil
}

func (s *Store) GetPaymentBySession(_ context.Context, sessionID string) (*models.RevisionPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) CompletePayment(_ context.Context, sessionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[sessionID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if p.Status == models.PaymentCompleted {
		return false, nil
	}
	p.Status = models.PaymentCompleted
	p.CompletedAt = sql.NullTime{Time: at, Valid: true}
	return true, nil
}

func (s *Store) FailPayment(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status == models.PaymentPending {
		p.Status = models.PaymentFailed
	}
	return nil
}

// Cards

func (s *Store) ReserveCard(_ context.Context, projectID uuid.UUID, cardType models.CardType, revision int) (*models.WorkflowCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cards {
		if c.ProjectID == projectID && c.CardType == cardType && c.RevisionNumber == revision {
			return nil, repository.ErrConflict
		}
	}
	c := &models.WorkflowCard{
		ID:             uuid.New(),
		ProjectID:      projectID,
		CardType:       cardType,
		RevisionNumber: revision,
		CreatedAt:      s.now(),
	}
	s.cards[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *Store) AttachCard(_ context.Context, id uuid.UUID, cardID, shortURL, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.CardID = cardID
	c.ShortURL = sql.NullString{String: shortURL, Valid: shortURL != ""}
	c.ListID = sql.NullString{String: listID, Valid: listID != ""}
	return nil
}

func (s *Store) ReleaseCard(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cards[id]; ok && c.CardID == "" {
		delete(s.cards, id)
	}
	return nil
}

func (s *Store) ListCards(_ context.Context, projectID uuid.UUID) ([]models.WorkflowCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.WorkflowCard
	for _, c := range s.cards {
		if c.ProjectID == projectID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionNumber < out[j].RevisionNumber })
	return out, nil
}

func (s *Store) LatestCard(ctx context.Context, projectID uuid.UUID) (*models.WorkflowCard, error) {
	cards, _ := s.ListCards(ctx, projectID)
	for i := len(cards) - 1; i >= 0; i-- {
		if cards[i].CardID != "" {
			c := cards[i]
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetCardByExternalID(_ context.Context, cardID string) (*models.WorkflowCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cards {
		if c.CardID == cardID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) SetCardHandler(_ context.Context, cardID string, handler sql.NullString) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cards {
		if c.CardID == cardID {
			c.AssignedHandler = handler
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Store) SetCardList(_ context.Context, id uuid.UUID, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.ListID = sql.NullString{String: listID, Valid: listID != ""}
	return nil
}

func (s *Store) CompleteCard(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.CompletedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}

// Tokens

func (s *Store) GetToken(_ context.Context, service string) (*models.ServiceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[service]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) SaveToken(_ context.Context, t *models.ServiceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.UpdatedAt = s.now()
	cp := *t
	s.tokens[t.Service] = &cp
	return nil
}

func (s *Store) CreateOAuthState(_ context.Context, st *models.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[st.State]; ok {
		return repository.ErrConflict
	}
	st.CreatedAt = s.now()
	cp := *st
	s.states[st.State] = &cp
	return nil
}

func (s *Store) ConsumeOAuthState(_ context.Context, state, service string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok || st.Service != service || st.Consumed || !now.Before(st.ExpiresAt) {
		return repository.ErrNotFound
	}
	st.Consumed = true
	return nil
}

// Subscriptions

func (s *Store) GetSubscription(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) GetSubscriptionByStripeID(_ context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscriptions {
		if sub.StripeSubscriptionID.Valid && sub.StripeSubscriptionID.String == stripeSubscriptionID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.UpdatedAt = s.now()
	cp := *sub
	s.subscriptions[sub.UserID] = &cp
	return nil
}

// Events

func (s *Store) EventProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[eventKey{provider, eventID}]
	return ok, nil
}

func (s *Store) RecordEvent(_ context.Context, provider, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventKey{provider, eventID}
	if _, ok := s.events[k]; ok {
		return repository.ErrConflict
	}
	s.events[k] = eventType
	return nil
}
