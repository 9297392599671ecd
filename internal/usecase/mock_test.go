//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/usecase"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.RequiresApproval = append([]model.ActionKind(nil), j.RequiresApproval...)
	cp.AllowedPaths = append([]string(nil), j.AllowedPaths...)
	cp.AcceptanceCommands = append([]string(nil), j.AcceptanceCommands...)
	cp.ArtifactContract = append([]string(nil), j.ArtifactContract...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}

// =============================
// Repositories
// =============================

// ---- Mock JobRepository ----

type MockJobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	seq  map[string]int // insertion order, tie-break for equal CreatedAt
	next int

	SaveFunc                func(ctx context.Context, tx repository.Tx, job *model.Job) error
	FetchAndMarkRunningFunc func(ctx context.Context, tx repository.Tx) (*model.Job, error)
	SaveErr                 error
}

var _ repository.JobRepository = (*MockJobRepo)(nil)

func NewMockJobRepo() *MockJobRepo {
	return &MockJobRepo{jobs: make(map[string]*model.Job), seq: make(map[string]int)}
}

func (m *MockJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, job)
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seq[job.ID]; !ok {
		m.seq[job.ID] = m.next
		m.next++
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *MockJobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return m.FindByID(ctx, tx, id)
}

func (m *MockJobRepo) FetchAndMarkRunning(ctx context.Context, tx repository.Tx) (*model.Job, error) {
	if m.FetchAndMarkRunningFunc != nil {
		return m.FetchAndMarkRunningFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var pick *model.Job
	for _, j := range m.jobs {
		if j.Status != model.JobStatusQueued || j.NextAttemptAt.After(now) {
			continue
		}
		if pick == nil || j.CreatedAt.Before(pick.CreatedAt) ||
			(j.CreatedAt.Equal(pick.CreatedAt) && m.seq[j.ID] < m.seq[pick.ID]) {
			pick = j
		}
	}
	if pick == nil {
		return nil, domain.ErrNoJobAvailable
	}
	pick.Status = model.JobStatusRunning
	pick.Attempts++
	pick.UpdatedAt = now
	if pick.StartedAt == nil {
		t := now
		pick.StartedAt = &t
	}
	return cloneJob(pick), nil
}

func (m *MockJobRepo) Touch(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.UpdatedAt = time.Now()
	return nil
}

func (m *MockJobRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus, limit int) ([]*model.Job, error) {
	return m.list(func(j *model.Job) bool { return j.Status == status }, limit), nil
}

func (m *MockJobRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Job, error) {
	return m.list(func(j *model.Job) bool { return true }, limit), nil
}

func (m *MockJobRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *MockJobRepo) FindActiveByRepoIssue(ctx context.Context, tx repository.Tx, repo string, issueNumber int64) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *model.Job
	for _, j := range m.jobs {
		if j.Repo == repo && j.IssueNumber == issueNumber && !j.Status.Terminal() {
			if found == nil || j.CreatedAt.After(found.CreatedAt) {
				found = j
			}
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return cloneJob(found), nil
}

func (m *MockJobRepo) FindRecentByRepoIssue(ctx context.Context, tx repository.Tx, repo string, issueNumber int64, since time.Time) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *model.Job
	for _, j := range m.jobs {
		if j.Repo == repo && j.IssueNumber == issueNumber && !j.CreatedAt.Before(since) {
			if found == nil || j.CreatedAt.After(found.CreatedAt) {
				found = j
			}
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return cloneJob(found), nil
}

func (m *MockJobRepo) ListRunningStartedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	return m.list(func(j *model.Job) bool {
		return j.Status == model.JobStatusRunning && j.StartedAt != nil && j.StartedAt.Before(cutoff)
	}, 0), nil
}

func (m *MockJobRepo) ListStaleRunning(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	return m.list(func(j *model.Job) bool {
		return j.Status == model.JobStatusRunning && j.UpdatedAt.Before(cutoff)
	}, 0), nil
}

func (m *MockJobRepo) ListStaleAwaitingApproval(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	return m.list(func(j *model.Job) bool {
		return j.Status == model.JobStatusAwaitingApproval && j.UpdatedAt.Before(cutoff)
	}, 0), nil
}

func (m *MockJobRepo) CountFailuresSince(ctx context.Context, tx repository.Tx, reason model.FailureReason, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status == model.JobStatusFailed && j.FailureReason == reason && !j.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MockJobRepo) list(keep func(*model.Job) bool, limit int) []*model.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return m.seq[out[a].ID] > m.seq[out[b].ID]
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ---- Mock JobEventRepository ----

type MockJobEventRepo struct {
	mu     sync.Mutex
	Events []*model.JobEvent

	AppendErr error
}

var _ repository.JobEventRepository = (*MockJobEventRepo)(nil)

func NewMockJobEventRepo() *MockJobEventRepo {
	return &MockJobEventRepo{}
}

func (m *MockJobEventRepo) Append(ctx context.Context, tx repository.Tx, event *model.JobEvent) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.Events = append(m.Events, &cp)
	return nil
}

func (m *MockJobEventRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.JobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.JobEvent
	for _, ev := range m.Events {
		if ev.JobID == jobID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ByType filters captured events, a convenience for assertions.
func (m *MockJobEventRepo) ByType(jobID string, typ model.JobEventType) []*model.JobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.JobEvent
	for _, ev := range m.Events {
		if ev.JobID == jobID && ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// ---- Mock ApprovalRepository ----

type MockApprovalRepo struct {
	mu        sync.Mutex
	Approvals []*model.Approval
}

var _ repository.ApprovalRepository = (*MockApprovalRepo)(nil)

func NewMockApprovalRepo() *MockApprovalRepo {
	return &MockApprovalRepo{}
}

func (m *MockApprovalRepo) Save(ctx context.Context, tx repository.Tx, approval *model.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *approval
	m.Approvals = append(m.Approvals, &cp)
	return nil
}

func (m *MockApprovalRepo) LatestByJobAndKind(ctx context.Context, tx repository.Tx, jobID string, kind model.ActionKind) (*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Approvals) - 1; i >= 0; i-- {
		a := m.Approvals[i]
		if a.JobID == jobID && a.ActionKind == kind {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockApprovalRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Approval
	for _, a := range m.Approvals {
		if a.JobID == jobID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock PolicyAuditRepository ----

type MockPolicyAuditRepo struct {
	mu      sync.Mutex
	Entries []*model.PolicyAuditEntry

	AppendErr error
}

var _ repository.PolicyAuditRepository = (*MockPolicyAuditRepo)(nil)

func NewMockPolicyAuditRepo() *MockPolicyAuditRepo {
	return &MockPolicyAuditRepo{}
}

func (m *MockPolicyAuditRepo) Append(ctx context.Context, tx repository.Tx, entry *model.PolicyAuditEntry) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.Entries = append(m.Entries, &cp)
	return nil
}

func (m *MockPolicyAuditRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.PolicyAuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PolicyAuditEntry
	for _, e := range m.Entries {
		if e.JobID == jobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock CostLedgerRepository ----

type MockCostLedgerRepo struct {
	mu      sync.Mutex
	Entries []*model.CostLedgerEntry
}

var _ repository.CostLedgerRepository = (*MockCostLedgerRepo)(nil)

func NewMockCostLedgerRepo() *MockCostLedgerRepo {
	return &MockCostLedgerRepo{}
}

func (m *MockCostLedgerRepo) Append(ctx context.Context, tx repository.Tx, entry *model.CostLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.Entries = append(m.Entries, &cp)
	return nil
}

func (m *MockCostLedgerRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.CostLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CostLedgerEntry
	for _, e := range m.Entries {
		if e.JobID == jobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockCostLedgerRepo) SumByJob(ctx context.Context, tx repository.Tx, jobID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, e := range m.Entries {
		if e.JobID == jobID {
			sum += e.USD
		}
	}
	return sum, nil
}

func (m *MockCostLedgerRepo) SumBetween(ctx context.Context, tx repository.Tx, from, to time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, e := range m.Entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			sum += e.USD
		}
	}
	return sum, nil
}

// ---- Mock IncidentRepository ----

type MockIncidentRepo struct {
	mu        sync.Mutex
	Incidents []*model.Incident
}

var _ repository.IncidentRepository = (*MockIncidentRepo)(nil)

func NewMockIncidentRepo() *MockIncidentRepo {
	return &MockIncidentRepo{}
}

func (m *MockIncidentRepo) Save(ctx context.Context, tx repository.Tx, incident *model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, inc := range m.Incidents {
		if inc.ID == incident.ID {
			cp := *incident
			m.Incidents[i] = &cp
			return nil
		}
	}
	cp := *incident
	m.Incidents = append(m.Incidents, &cp)
	return nil
}

func (m *MockIncidentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inc := range m.Incidents {
		if inc.ID == id {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockIncidentRepo) ListOpen(ctx context.Context, tx repository.Tx) ([]*model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Incident
	for _, inc := range m.Incidents {
		if inc.Status == model.IncidentStatusOpen {
			cp := *inc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockIncidentRepo) LatestByTypeSince(ctx context.Context, tx repository.Tx, incidentType string, since time.Time) (*model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Incident
	for _, inc := range m.Incidents {
		if inc.Type == incidentType && !inc.CreatedAt.Before(since) {
			if found == nil || inc.CreatedAt.After(found.CreatedAt) {
				found = inc
			}
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

// ---- Mock RepoProfileRepository ----

type MockRepoProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]*model.RepoProfile
}

var _ repository.RepoProfileRepository = (*MockRepoProfileRepo)(nil)

func NewMockRepoProfileRepo() *MockRepoProfileRepo {
	return &MockRepoProfileRepo{profiles: make(map[string]*model.RepoProfile)}
}

func (m *MockRepoProfileRepo) Get(ctx context.Context, tx repository.Tx, repo string) (*model.RepoProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[repo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockRepoProfileRepo) Save(ctx context.Context, tx repository.Tx, profile *model.RepoProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.profiles[profile.Repo] = &cp
	return nil
}

func (m *MockRepoProfileRepo) List(ctx context.Context, tx repository.Tx) ([]*model.RepoProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.RepoProfile
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Repo < out[b].Repo })
	return out, nil
}

// ---- Mock ModelProfileRepository ----

type MockModelProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]*model.ModelProfile
}

var _ repository.ModelProfileRepository = (*MockModelProfileRepo)(nil)

// NewMockModelProfileRepo starts pre-seeded with the stock profiles at unit
// prices, same as the database seed.
func NewMockModelProfileRepo() *MockModelProfileRepo {
	m := &MockModelProfileRepo{profiles: make(map[string]*model.ModelProfile)}
	for _, p := range model.DefaultModelProfiles() {
		m.profiles[p.Profile] = p
	}
	return m
}

func (m *MockModelProfileRepo) GetByProfile(ctx context.Context, tx repository.Tx, profile string) (*model.ModelProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[profile]
	if !ok || !p.Active {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockModelProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.ModelProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.Profile] = &cp
	return nil
}

func (m *MockModelProfileRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ModelProfile
	for _, p := range m.profiles {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Profile < out[b].Profile })
	return out, nil
}

// =============================
// Adapters
// =============================

// ---- Mock CodingAgent ----

type MockAgent struct {
	mu sync.Mutex

	CompleteFunc    func(ctx context.Context, modelName string, msgs []adapter.Message) (*adapter.CompletionResult, error)
	CountTokensFunc func(ctx context.Context, modelName string, msgs []adapter.Message) (int, error)

	Calls []string // prompts seen, for tracing
}

var _ adapter.CodingAgent = (*MockAgent)(nil)

func (m *MockAgent) Name() string { return "mock" }

func (m *MockAgent) CountTokens(ctx context.Context, modelName string, msgs []adapter.Message) (int, error) {
	if m.CountTokensFunc != nil {
		return m.CountTokensFunc(ctx, modelName, msgs)
	}
	n := 0
	for _, msg := range msgs {
		n += len(msg.Content) / 4
	}
	return n, nil
}

// Complete defaults to a deterministic response: a plausible diff when the
// prompt asks for one, plain markdown otherwise, with usage derived from the
// prompt length.
func (m *MockAgent) Complete(ctx context.Context, modelName string, msgs []adapter.Message) (*adapter.CompletionResult, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, modelName, msgs)
	}
	prompt := ""
	for _, msg := range msgs {
		prompt += msg.Content + "\n"
	}
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	m.mu.Unlock()

	content := "## notes\n\n- looks fine\n"
	if strings.Contains(prompt, "unified diff") {
		content = "diff --git a/README.md b/README.md\n--- a/README.md\n+++ b/README.md\n@@ -1 +1,2 @@\n hello\n+world\n"
	}
	return &adapter.CompletionResult{
		Content: content,
		Model:   modelName,
		Usage: adapter.Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(prompt)/4 + len(content)/4,
		},
	}, nil
}

// ---- Mock GitHubClient ----

type MockGitHub struct {
	mu sync.Mutex

	CreateIssueFunc   func(ctx context.Context, repo, title, body string, labels []string) (adapter.IssueRef, error)
	CreateDraftPRFunc func(ctx context.Context, repo, title, head, base, body string) (string, error)

	Issues   []adapter.IssueRef
	DraftPRs []string
	Comments []string
}

var _ adapter.GitHubClient = (*MockGitHub)(nil)

func (m *MockGitHub) Name() string { return "mock-github" }

func (m *MockGitHub) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (adapter.IssueRef, error) {
	if m.CreateIssueFunc != nil {
		return m.CreateIssueFunc(ctx, repo, title, body, labels)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := adapter.IssueRef{
		Number: int64(len(m.Issues) + 1000),
		URL:    fmt.Sprintf("https://example.invalid/%s/issues/%d", repo, len(m.Issues)+1000),
	}
	m.Issues = append(m.Issues, ref)
	return ref, nil
}

func (m *MockGitHub) CreateDraftPR(ctx context.Context, repo, title, head, base, body string) (string, error) {
	if m.CreateDraftPRFunc != nil {
		return m.CreateDraftPRFunc(ctx, repo, title, head, base, body)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := fmt.Sprintf("https://example.invalid/%s/pull/%d", repo, len(m.DraftPRs)+1)
	m.DraftPRs = append(m.DraftPRs, url)
	return url, nil
}

func (m *MockGitHub) AddComment(ctx context.Context, repo string, issueNumber int64, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Comments = append(m.Comments, body)
	return nil
}

func (m *MockGitHub) AddLabels(ctx context.Context, repo string, issueNumber int64, labels []string) error {
	return nil
}

// ---- Mock OperatorNotifier ----

type MockNotifier struct {
	mu sync.Mutex

	ApprovalRequests []string // job ids
	Terminals        []string // "jobID:status"
	Incidents        []string // incident ids
}

var _ adapter.OperatorNotifier = (*MockNotifier)(nil)

func (m *MockNotifier) ApprovalRequested(ctx context.Context, job *model.Job, kind model.ActionKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApprovalRequests = append(m.ApprovalRequests, job.ID)
	return nil
}

func (m *MockNotifier) JobTerminal(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Terminals = append(m.Terminals, job.ID+":"+string(job.Status))
	return nil
}

func (m *MockNotifier) IncidentRaised(ctx context.Context, incident *model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Incidents = append(m.Incidents, incident.ID)
	return nil
}

// ---- Mock ArtifactStore ----

type MockArtifactStore struct {
	mu      sync.Mutex
	files   map[string]map[string][]byte
	RunLogs map[string][]map[string]interface{}

	WriteErr error
}

var _ adapter.ArtifactStore = (*MockArtifactStore)(nil)

func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{
		files:   make(map[string]map[string][]byte),
		RunLogs: make(map[string][]map[string]interface{}),
	}
}

func (m *MockArtifactStore) EnsureDir(jobID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[jobID] == nil {
		m.files[jobID] = make(map[string][]byte)
	}
	return "/tmp/artifacts/" + jobID, nil
}

func (m *MockArtifactStore) AppendRunLog(ctx context.Context, jobID string, entry map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunLogs[jobID] = append(m.RunLogs[jobID], entry)
	if m.files[jobID] == nil {
		m.files[jobID] = make(map[string][]byte)
	}
	m.files[jobID]["run.jsonl"] = append(m.files[jobID]["run.jsonl"], '\n')
	return nil
}

func (m *MockArtifactStore) WriteArtifact(ctx context.Context, jobID, name string, data []byte) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[jobID] == nil {
		m.files[jobID] = make(map[string][]byte)
	}
	m.files[jobID][name] = append([]byte(nil), data...)
	return nil
}

func (m *MockArtifactStore) ReadArtifact(ctx context.Context, jobID, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[jobID][name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MockArtifactStore) List(ctx context.Context, jobID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.files[jobID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the function immediately without a real transaction. Assign
// WithTxFunc for tests that need to verify transactional behavior.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock SwitchStore (kill switch backing flag) ----

type MockSwitchStore struct {
	mu      sync.Mutex
	enabled bool
	Err     error
}

var _ usecase.SwitchStore = (*MockSwitchStore)(nil)

func NewMockSwitchStore() *MockSwitchStore {
	return &MockSwitchStore{enabled: true}
}

func (m *MockSwitchStore) Enabled(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return m.enabled, nil
}

func (m *MockSwitchStore) SetEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.enabled = enabled
	return nil
}

// ---- Mock IntakeRateLimiter ----

type MockRateLimiter struct {
	mu    sync.Mutex
	Keys  []string
	Deny  bool
	Err   error
	Limit int
}

var _ usecase.IntakeRateLimiter = (*MockRateLimiter)(nil)

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Keys = append(m.Keys, key)
	m.Limit = limit
	if m.Err != nil {
		return false, m.Err
	}
	return !m.Deny, nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// uniqueRepo avoids cross-test interference in shared maps.
func uniqueRepo() string {
	return "org/" + uuid.NewString()[:8]
}
