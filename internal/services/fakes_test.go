package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"client-delivery-backend/internal/cache"
	"client-delivery-backend/internal/frameio"
	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/notify"
	"client-delivery-backend/internal/payments"
	"client-delivery-backend/internal/repository/memstore"
	"client-delivery-backend/internal/services"
	"client-delivery-backend/internal/trello"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// fakeMedia is an in-memory media platform: a folder tree plus shares.
type fakeMedia struct {
	mu       sync.Mutex
	seq      int
	assets   map[string]frameio.Asset
	children map[string][]string
	shares   map[string]frameio.Share
	gone     map[string]bool

	listErr  error
	probeErr error

	folderCalls   int
	shareCalls    int
	commentCalls  int
	downloadCalls int
	thumbCalls    int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		assets:   make(map[string]frameio.Asset),
		children: make(map[string][]string),
		shares:   make(map[string]frameio.Share),
		gone:     make(map[string]bool),
	}
}

func (m *fakeMedia) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *fakeMedia) CreateFolder(_ context.Context, parentID, name string) (*frameio.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folderCalls++
	id := m.nextID("folder")
	m.assets[id] = frameio.Asset{ID: id, Name: name, Type: "folder", ParentID: parentID}
	m.children[parentID] = append(m.children[parentID], id)
	return &frameio.Folder{ID: id, Name: name, ParentID: parentID}, nil
}

func (m *fakeMedia) ListChildren(_ context.Context, folderID string) ([]frameio.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []frameio.Asset
	for _, id := range m.children[folderID] {
		out = append(out, m.assets[id])
	}
	return out, nil
}

func (m *fakeMedia) ListVideoAssets(ctx context.Context, folderID string) ([]frameio.Asset, error) {
	all, err := m.ListChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}
	var out []frameio.Asset
	for _, a := range all {
		if a.IsVideo() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *fakeMedia) GetFile(_ context.Context, fileID string) (*frameio.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[fileID]
	if !ok {
		return nil, &frameio.APIError{Op: "get file", StatusCode: http.StatusNotFound}
	}
	return &a, nil
}

func (m *fakeMedia) DownloadURL(_ context.Context, fileID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadCalls++
	return "https://download.example.com/" + fileID, nil
}

func (m *fakeMedia) Thumbnail(_ context.Context, fileID string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thumbCalls++
	return []byte("thumb-" + fileID), "image/png", nil
}

func (m *fakeMedia) CreateShare(_ context.Context, name, assetID string, expiresAt time.Time, commenting bool) (*frameio.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shareCalls++
	id := m.nextID("share")
	s := frameio.Share{
		ID:                id,
		Name:              name,
		ShortURL:          "https://f.io/" + id,
		Enabled:           true,
		CommentingEnabled: commenting,
		ExpiresAt:         expiresAt,
	}
	m.shares[id] = s
	return &s, nil
}

func (m *fakeMedia) UpdateShareCommenting(_ context.Context, shareID string, commenting bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commentCalls++
	s := m.shares[shareID]
	s.CommentingEnabled = commenting
	m.shares[shareID] = s
	return nil
}

func (m *fakeMedia) ProbeShare(_ context.Context, shareID string, now time.Time) (*frameio.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	s, ok := m.shares[shareID]
	if !ok || m.gone[shareID] || !now.Before(s.ExpiresAt) {
		return nil, frameio.ErrShareUnavailable
	}
	return &s, nil
}

// addVideo places a video directly inside folderID.
func (m *fakeMedia) addVideo(folderID, name string, createdAt time.Time) frameio.Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := frameio.Asset{
		ID:        m.nextID("asset"),
		Name:      name,
		Type:      "file",
		MediaType: "video/mp4",
		ParentID:  folderID,
		FileSize:  1 << 20,
		CreatedAt: createdAt,
	}
	m.assets[a.ID] = a
	m.children[folderID] = append(m.children[folderID], a.ID)
	return a
}

func (m *fakeMedia) expire(shareID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gone[shareID] = true
}

func (m *fakeMedia) counts() (folders, shares int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.folderCalls, m.shareCalls
}

// fakeKanban records cards and attachments.
type fakeKanban struct {
	mu          sync.Mutex
	seq         int
	cards       map[string]*trello.Card
	created     []trello.NewCard
	attachments map[string][]trello.Attachment
	labels      map[string]trello.Label
	comments    map[string][]string
	createErr   error
	attachErr   error
}

func newFakeKanban() *fakeKanban {
	return &fakeKanban{
		cards:       make(map[string]*trello.Card),
		attachments: make(map[string][]trello.Attachment),
		labels:      make(map[string]trello.Label),
		comments:    make(map[string][]string),
	}
}

func (k *fakeKanban) CreateCard(_ context.Context, nc trello.NewCard) (*trello.Card, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.createErr != nil {
		return nil, k.createErr
	}
	k.seq++
	id := fmt.Sprintf("card-%d", k.seq)
	c := &trello.Card{
		ID:        id,
		Name:      nc.Name,
		ShortURL:  "https://trello.com/c/" + id,
		ListID:    nc.ListID,
		MemberIDs: nc.MemberIDs,
		LabelIDs:  nc.LabelIDs,
		Due:       nc.Due,
	}
	k.cards[id] = c
	k.created = append(k.created, nc)
	cp := *c
	return &cp, nil
}

func (k *fakeKanban) MoveCard(_ context.Context, cardID, listID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.cards[cardID]
	if !ok {
		return errors.New("card not found")
	}
	c.ListID = listID
	return nil
}

func (k *fakeKanban) AttachOnce(_ context.Context, cardID, name, link string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.attachErr != nil {
		return false, k.attachErr
	}
	for _, a := range k.attachments[cardID] {
		if a.URL == link {
			return false, nil
		}
	}
	k.attachments[cardID] = append(k.attachments[cardID], trello.Attachment{
		ID: fmt.Sprintf("att-%d", len(k.attachments[cardID])+1), Name: name, URL: link,
	})
	return true, nil
}

func (k *fakeKanban) AddComment(_ context.Context, cardID, text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.cards[cardID]; !ok {
		return errors.New("card not found")
	}
	k.comments[cardID] = append(k.comments[cardID], text)
	return nil
}

func (k *fakeKanban) EnsureLabel(_ context.Context, boardID, name, color string) (*trello.Label, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.labels[name]; ok {
		return &l, nil
	}
	l := trello.Label{ID: "label-" + name, Name: name, Color: color}
	k.labels[name] = l
	return &l, nil
}

func (k *fakeKanban) card(id string) trello.Card {
	k.mu.Lock()
	defer k.mu.Unlock()
	return *k.cards[id]
}

func (k *fakeKanban) links(cardID string) map[string]string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]string)
	for _, a := range k.attachments[cardID] {
		out[a.Name] = a.URL
	}
	return out
}

func (k *fakeKanban) createdCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.created)
}

type mockGateway struct {
	mock.Mock
}

func (g *mockGateway) CreateRevisionCheckout(ctx context.Context, in payments.RevisionCheckout) (*payments.Checkout, error) {
	args := g.Called(ctx, in)
	if c := args.Get(0); c != nil {
		return c.(*payments.Checkout), args.Error(1)
	}
	return nil, args.Error(1)
}

func (g *mockGateway) CreateSubscriptionCheckout(ctx context.Context, in payments.SubscriptionCheckout) (*payments.Checkout, error) {
	args := g.Called(ctx, in)
	if c := args.Get(0); c != nil {
		return c.(*payments.Checkout), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []models.StatusTransition
}

func (o *recordingObserver) OnTransition(_ context.Context, _ models.Project, tr models.StatusTransition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, tr)
}

func (o *recordingObserver) count(to lifecycle.Status) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, tr := range o.seen {
		if tr.To == to {
			n++
		}
	}
	return n
}

type captureQueue struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (q *captureQueue) Enqueue(_ context.Context, msg notify.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *captureQueue) templates() []notify.Template {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]notify.Template, 0, len(q.msgs))
	for _, m := range q.msgs {
		out = append(out, m.Template)
	}
	return out
}

type noDirectory struct{}

func (noDirectory) Email(context.Context, uuid.UUID) (string, error) {
	return "", errors.New("no directory")
}

var board = services.BoardConfig{
	BoardID:        "board-1",
	IntakeListID:   "list-intake",
	RevisionListID: "list-revision",
	ReviewListID:   "list-review",
	DoneListID:     "list-done",
	FrontendURL:    "https://app.example.com",
}

const rootFolder = "root-folder"

type harness struct {
	clock      *clock
	store      *memstore.Store
	media      *fakeMedia
	kanban     *fakeKanban
	gateway    *mockGateway
	observer   *recordingObserver
	mail       *captureQueue
	machine    *services.Machine
	reconciler *services.ReconcileService
	bridge     *services.WorkflowBridge
	projects   *services.ProjectService
	ingest     *services.IngestService
	owner      services.Actor
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := discardLogger()
	h := &harness{
		clock:    &clock{now: t0},
		store:    memstore.New(),
		media:    newFakeMedia(),
		kanban:   newFakeKanban(),
		gateway:  &mockGateway{},
		observer: &recordingObserver{},
		mail:     &captureQueue{},
		owner:    services.Actor{ID: uuid.New(), Email: "client@example.com"},
	}
	h.store.SetClock(h.clock.Now)

	h.machine = services.NewMachine(h.store, logger)
	h.machine.SetClock(h.clock.Now)

	renderer, err := notify.NewRenderer()
	require.NoError(t, err)
	h.machine.Observe(h.observer)
	h.bridge = services.NewWorkflowBridge(h.store, h.kanban, board, logger)
	h.bridge.SetClock(h.clock.Now)
	h.machine.Observe(h.bridge)
	h.machine.Observe(notify.NewDispatcher(h.mail, renderer, noDirectory{}, "admin@example.com", board.FrontendURL, logger))

	h.reconciler = services.NewReconcileService(h.store, h.media, h.machine, cache.NewMemoryCache(64), rootFolder, false, logger)
	h.reconciler.SetClock(h.clock.Now)

	h.projects = services.NewProjectService(h.store, h.machine, h.reconciler, h.gateway, services.ProjectOptions{
		RevisionPriceCents: 500,
		RevisionCurrency:   "usd",
		FrontendURL:        board.FrontendURL,
		SubscriptionPrices: map[models.Tier]string{models.TierStandard: "price_standard"},
	}, logger)
	h.projects.SetClock(h.clock.Now)
	h.projects.SetRevisionNotes(h.bridge)

	h.ingest = services.NewIngestService(h.store, h.projects, h.reconciler, h.media, logger)

	h.subscribe(t, h.owner.ID, models.TierStandard)
	return h
}

func (h *harness) subscribe(t *testing.T, userID uuid.UUID, tier models.Tier) {
	t.Helper()
	require.NoError(t, h.store.UpsertSubscription(context.Background(), &models.Subscription{
		UserID:             userID,
		Tier:               tier,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: t0.Add(-24 * time.Hour),
	}))
}

// newProject creates a draft project owned by h.owner.
func (h *harness) newProject(t *testing.T, title string) *models.Project {
	t.Helper()
	p, err := h.projects.Create(context.Background(), h.owner, models.CreateProjectRequest{Title: title})
	require.NoError(t, err)
	return p
}

// editing returns a project in edit_in_progress whose intake form was
// submitted at the current clock time.
func (h *harness) editing(t *testing.T, title string) *models.Project {
	t.Helper()
	ctx := context.Background()
	p := h.newProject(t, title)
	p, err := h.projects.SubmitIntakeForm(ctx, h.owner, p.ID, models.IntakeFormRequest{
		SubmissionID: "sub-" + p.ID.String()[:8],
		Payload:      map[string]interface{}{"style": "cinematic"},
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusEditInProgress, p.Status)
	return p
}

// delivered returns a project in video_is_ready and the delivered asset.
func (h *harness) delivered(t *testing.T, title string) (*models.Project, frameio.Asset) {
	t.Helper()
	p := h.editing(t, title)
	res, err := h.reconciler.Reconcile(context.Background(), p.ID)
	require.NoError(t, err)
	asset := h.media.addVideo(res.Project.MediaFolderID.String, "cut-v1.mp4", h.clock.Advance(time.Hour))
	res, err = h.reconciler.Reconcile(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	return res.Project, asset
}

func (h *harness) get(t *testing.T, id uuid.UUID) *models.Project {
	t.Helper()
	p, err := h.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) transitionsTo(t *testing.T, id uuid.UUID, to lifecycle.Status) int {
	t.Helper()
	ts, err := h.store.ListTransitions(context.Background(), id)
	require.NoError(t, err)
	n := 0
	for _, tr := range ts {
		if tr.To == to {
			n++
		}
	}
	return n
}
