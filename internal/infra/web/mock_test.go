package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/usecase"
)

// --- Mock use cases (the ports the handlers consume) ---

type mockLifecycleUC struct {
	usecase.LifecycleUseCase // Embed interface for forward compatibility
	mu                       sync.Mutex
	jobs                     map[string]*model.Job
	events                   map[string][]*model.JobEvent
	ListError                error // To simulate errors
}

func newMockLifecycleUC() *mockLifecycleUC {
	return &mockLifecycleUC{jobs: map[string]*model.Job{}, events: map[string][]*model.JobEvent{}}
}

func (m *mockLifecycleUC) add(job *model.Job, events ...*model.JobEvent) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.events[job.ID] = append(m.events[job.ID], events...)
	return job
}

func (m *mockLifecycleUC) List(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Job{}
	for _, j := range m.jobs {
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockLifecycleUC) Get(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (m *mockLifecycleUC) GetWithEvents(ctx context.Context, id string) (*model.Job, []*model.JobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	return j, m.events[id], nil
}

type mockApprovalUC struct {
	usecase.ApprovalUseCase // Embed interface
	mu                      sync.Mutex
	lifecycle               *mockLifecycleUC
	approvals               map[string][]*model.Approval
	ApproveError            error
	RejectError             error
	LastActor               string
}

func newMockApprovalUC(lifecycle *mockLifecycleUC) *mockApprovalUC {
	return &mockApprovalUC{lifecycle: lifecycle, approvals: map[string][]*model.Approval{}}
}

func (m *mockApprovalUC) Approve(ctx context.Context, jobID string, kind model.ActionKind, actor, reason string) (*model.Job, error) {
	if m.ApproveError != nil {
		return nil, m.ApproveError
	}
	if !model.ValidActionKind(kind) {
		return nil, fmt.Errorf("unknown action kind %q: %w", kind, domain.ErrInvalidArgument)
	}
	job, err := m.lifecycle.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job already %s: %w", job.Status, domain.ErrInvalidState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastActor = actor
	m.approvals[jobID] = append(m.approvals[jobID], model.NewApproval(jobID, kind, true, actor, reason))
	if job.Status == model.JobStatusAwaitingApproval && job.PendingAction == kind {
		job.Status = model.JobStatusRunning
		job.PendingAction = ""
	}
	return job, nil
}

func (m *mockApprovalUC) Reject(ctx context.Context, jobID, actor, reason string) (*model.Job, error) {
	if m.RejectError != nil {
		return nil, m.RejectError
	}
	job, err := m.lifecycle.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job already %s: %w", job.Status, domain.ErrInvalidState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastActor = actor
	if job.PendingAction != "" {
		m.approvals[jobID] = append(m.approvals[jobID], model.NewApproval(jobID, job.PendingAction, false, actor, reason))
	}
	job.Status = model.JobStatusRejected
	job.PendingAction = ""
	return job, nil
}

func (m *mockApprovalUC) ListByJob(ctx context.Context, jobID string) ([]*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approvals[jobID], nil
}

type mockKillSwitchUC struct {
	usecase.KillSwitchUseCase // Embed interface
	mu                        sync.Mutex
	enabled                   bool
	EnabledError              error
	LastActor                 string
	LastReason                string
}

func (m *mockKillSwitchUC) Enabled(ctx context.Context) (bool, error) {
	if m.EnabledError != nil {
		return false, m.EnabledError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

func (m *mockKillSwitchUC) Enable(ctx context.Context, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	m.LastActor = actor
	return nil
}

func (m *mockKillSwitchUC) Disable(ctx context.Context, actor, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.LastActor = actor
	m.LastReason = reason
	return nil
}

type mockIncidentUC struct {
	usecase.IncidentUseCase // Embed interface
	mu                      sync.Mutex
	incidents               map[string]*model.Incident
	ListError               error
}

func newMockIncidentUC() *mockIncidentUC {
	return &mockIncidentUC{incidents: map[string]*model.Incident{}}
}

func (m *mockIncidentUC) RaiseManual(ctx context.Context, severity model.IncidentSeverity, details string) (*model.Incident, error) {
	if details == "" {
		return nil, fmt.Errorf("incident details required: %w", domain.ErrInvalidArgument)
	}
	switch severity {
	case model.IncidentSeverityInfo, model.IncidentSeverityWarning, model.IncidentSeverityCritical:
	default:
		return nil, fmt.Errorf("unknown severity %q: %w", severity, domain.ErrInvalidArgument)
	}
	inc := model.NewIncident(model.IncidentTypeManual, severity, details)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.ID] = inc
	return inc, nil
}

func (m *mockIncidentUC) Resolve(ctx context.Context, id string) (*model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	inc.Resolve()
	return inc, nil
}

func (m *mockIncidentUC) ListOpen(ctx context.Context) ([]*model.Incident, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Incident{}
	for _, inc := range m.incidents {
		if inc.Status == model.IncidentStatusOpen {
			out = append(out, inc)
		}
	}
	return out, nil
}

type mockLedgerUC struct {
	usecase.CostLedgerUseCase // Embed interface
	entries                   map[string][]*model.CostLedgerEntry
	day                       float64
	month                     float64
	SpendError                error
}

func newMockLedgerUC() *mockLedgerUC {
	return &mockLedgerUC{entries: map[string][]*model.CostLedgerEntry{}}
}

func (m *mockLedgerUC) ListByJob(ctx context.Context, jobID string) ([]*model.CostLedgerEntry, error) {
	return m.entries[jobID], nil
}

func (m *mockLedgerUC) JobSpend(ctx context.Context, jobID string) (float64, error) {
	var sum float64
	for _, e := range m.entries[jobID] {
		sum += e.USD
	}
	return sum, nil
}

func (m *mockLedgerUC) DaySpend(ctx context.Context, at time.Time) (float64, error) {
	if m.SpendError != nil {
		return 0, m.SpendError
	}
	return m.day, nil
}

func (m *mockLedgerUC) MonthSpend(ctx context.Context, at time.Time) (float64, error) {
	if m.SpendError != nil {
		return 0, m.SpendError
	}
	return m.month, nil
}

type mockIntakeUC struct {
	usecase.IntakeUseCase // Embed interface
	CreateError           error
	TextError             error
	LastCreate            usecase.CreateJobParams
	LastText              usecase.TextIntakeParams
}

func (m *mockIntakeUC) CreateJob(ctx context.Context, p usecase.CreateJobParams) (*model.Job, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	m.LastCreate = p
	caps := model.Caps{MaxMinutes: 30, MaxIterations: 20, MaxUSD: 5}
	if p.Caps != nil {
		caps = *p.Caps
	}
	return model.NewJob(p.Repo, p.IssueNumber, p.Title, p.BaseBranch, p.RiskClass, p.ModelProfile, p.CreatedBy, caps), nil
}

func (m *mockIntakeUC) IntakeFromText(ctx context.Context, p usecase.TextIntakeParams) (*model.Job, error) {
	if m.TextError != nil {
		return nil, m.TextError
	}
	m.LastText = p
	return model.NewJob(p.Repo, 1001, p.Title, "main", p.RiskClass, p.ModelProfile, p.CreatedBy,
		model.Caps{MaxMinutes: 30, MaxIterations: 20, MaxUSD: 5}), nil
}

type mockProfileRepo struct {
	repository.ModelProfileRepository // Embed interface
	mu                                sync.Mutex
	profiles                          map[string]*model.ModelProfile
	ListError                         error
}

func newMockProfileRepo() *mockProfileRepo {
	m := &mockProfileRepo{profiles: map[string]*model.ModelProfile{}}
	for _, p := range model.DefaultModelProfiles() {
		m.profiles[p.Profile] = p
	}
	return m
}

func (m *mockProfileRepo) GetByProfile(ctx context.Context, tx repository.Tx, profile string) (*model.ModelProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profile]
	if !ok || !p.Active {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.ModelProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.Profile] = &cp
	return nil
}

func (m *mockProfileRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelProfile, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.ModelProfile{}
	for _, p := range m.profiles {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Profile < out[b].Profile })
	return out, nil
}

type mockRepoProfileRepo struct {
	repository.RepoProfileRepository // Embed interface
	mu                               sync.Mutex
	repos                            map[string]*model.RepoProfile
	ListError                        error
}

func newMockRepoProfileRepo() *mockRepoProfileRepo {
	return &mockRepoProfileRepo{repos: map[string]*model.RepoProfile{}}
}

func (m *mockRepoProfileRepo) Get(ctx context.Context, tx repository.Tx, repo string) (*model.RepoProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.repos[repo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepoProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.RepoProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.repos[p.Repo] = &cp
	return nil
}

func (m *mockRepoProfileRepo) List(ctx context.Context, tx repository.Tx) ([]*model.RepoProfile, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.RepoProfile{}
	for _, p := range m.repos {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Repo < out[b].Repo })
	return out, nil
}

type mockPolicyUC struct {
	usecase.PolicyUseCase // Embed interface
	mu                    sync.Mutex
	Reloaded              *config.PolicySnapshot
	ReloadError           error
}

func (m *mockPolicyUC) Reload(snap *config.PolicySnapshot) error {
	if m.ReloadError != nil {
		return m.ReloadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reloaded = snap
	return nil
}

type mockArtifactStore struct {
	adapter.ArtifactStore // Embed interface
	files                 map[string]map[string][]byte
}

func newMockArtifactStore() *mockArtifactStore {
	return &mockArtifactStore{files: map[string]map[string][]byte{}}
}

func (m *mockArtifactStore) put(jobID, name string, data []byte) {
	if m.files[jobID] == nil {
		m.files[jobID] = map[string][]byte{}
	}
	m.files[jobID][name] = data
}

func (m *mockArtifactStore) List(ctx context.Context, jobID string) ([]string, error) {
	out := []string{}
	for name := range m.files[jobID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockArtifactStore) ReadArtifact(ctx context.Context, jobID, name string) ([]byte, error) {
	data, ok := m.files[jobID][name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

// --- Test wiring helpers ---

const testOperatorToken = "test-operator-token"

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(nil)
	return &logger
}

type testDeps struct {
	lifecycle  *mockLifecycleUC
	approvals  *mockApprovalUC
	killSwitch *mockKillSwitchUC
	incidents  *mockIncidentUC
	ledger     *mockLedgerUC
	intake     *mockIntakeUC
	policy     *mockPolicyUC
	profiles   *mockProfileRepo
	repos      *mockRepoProfileRepo
	artifacts  *mockArtifactStore
}

func newTestDeps() *testDeps {
	lifecycle := newMockLifecycleUC()
	return &testDeps{
		lifecycle:  lifecycle,
		approvals:  newMockApprovalUC(lifecycle),
		killSwitch: &mockKillSwitchUC{enabled: true},
		incidents:  newMockIncidentUC(),
		ledger:     newMockLedgerUC(),
		intake:     &mockIntakeUC{},
		policy:     &mockPolicyUC{},
		profiles:   newMockProfileRepo(),
		repos:      newMockRepoProfileRepo(),
		artifacts:  newMockArtifactStore(),
	}
}

func newTestRouter(d *testDeps) *chi.Mux {
	auth := NewAuthManager("test-operator-jwt-secret", false, "", time.Minute)
	s := NewServer(d.lifecycle, d.approvals, d.killSwitch, d.incidents, d.ledger, d.intake,
		d.policy, d.profiles, d.repos, d.artifacts, testOperatorToken, "", auth, newTestLogger())
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

func authedRequest(method, target, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Authorization", "Bearer "+testOperatorToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
