package model

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusRunning          JobStatus = "running"
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusRejected         JobStatus = "rejected"
	JobStatusFailed           JobStatus = "failed"
)

// Terminal reports whether no further transition is permitted from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusRejected, JobStatusFailed:
		return true
	}
	return false
}

type RiskClass string

const (
	RiskClassDocs        RiskClass = "docs"
	RiskClassCode        RiskClass = "code"
	RiskClassDeps        RiskClass = "deps"
	RiskClassInfra       RiskClass = "infra"
	RiskClassSecrets     RiskClass = "secrets"
	RiskClassDestructive RiskClass = "destructive"
)

func ValidRiskClass(r RiskClass) bool {
	switch r {
	case RiskClassDocs, RiskClassCode, RiskClassDeps, RiskClassInfra, RiskClassSecrets, RiskClassDestructive:
		return true
	}
	return false
}

type Stage string

const (
	StageIntake  Stage = "intake"
	StageTriage  Stage = "triage"
	StagePlan    Stage = "plan"
	StageExecute Stage = "execute"
	StageTest    Stage = "test"
	StageReview  Stage = "review"
	StagePR      Stage = "pr"
	StageDone    Stage = "done"
)

// PipelineStages is the execution order a running job walks through.
var PipelineStages = []Stage{StageTriage, StagePlan, StageExecute, StageTest, StageReview, StagePR}

type ActionKind string

const (
	ActionKindMerge       ActionKind = "merge"
	ActionKindInfra       ActionKind = "infra"
	ActionKindSecrets     ActionKind = "secrets"
	ActionKindDestructive ActionKind = "destructive"
)

func ValidActionKind(k ActionKind) bool {
	switch k {
	case ActionKindMerge, ActionKindInfra, ActionKindSecrets, ActionKindDestructive:
		return true
	}
	return false
}

// Caps are hard per-job limits, immutable after the job is created.
type Caps struct {
	MaxMinutes    int
	MaxIterations int
	MaxUSD        float64
}

// DefaultArtifactContract lists the files a completed job is expected to leave
// in its artifact directory.
var DefaultArtifactContract = []string{
	"plan.md", "patch.diff", "test.log", "review.md", "cost.json", "run.jsonl",
}

// Job is one unit of agent work tied to an issue/repo and a caps/policy contract.
type Job struct {
	ID                 string
	Repo               string // "org/name"
	IssueNumber        int64  // real in release mode, synthetic in fast mode
	Title              string
	BaseBranch         string
	RiskClass          RiskClass
	Status             JobStatus
	ModelProfile       string // triage|build|review
	RequiresApproval   []ActionKind
	AllowedPaths       []string
	AcceptanceCommands []string
	ArtifactContract   []string
	Caps               Caps
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CurrentStage       Stage
	FailureReason      FailureReason // empty unless Status == failed
	PRURL              string
	CostUSD            float64
	Iterations         int        // billed iterations consumed so far
	Attempts           int        // dispatch attempts consumed so far
	NextAttemptAt      time.Time  // earliest claimable time, moved forward by retry backoff
	StartedAt          *time.Time // first successful claim; basis for the wall-clock cap
	PendingAction      ActionKind // set while Status == awaiting_approval
}

func NewJob(repo string, issueNumber int64, title, baseBranch string, risk RiskClass, profile, createdBy string, caps Caps) *Job {
	now := time.Now()
	return &Job{
		ID:               uuid.NewString(),
		Repo:             repo,
		IssueNumber:      issueNumber,
		Title:            title,
		BaseBranch:       baseBranch,
		RiskClass:        risk,
		Status:           JobStatusQueued,
		ModelProfile:     profile,
		ArtifactContract: append([]string(nil), DefaultArtifactContract...),
		Caps:             caps,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
		CurrentStage:     StageIntake,
		NextAttemptAt:    now,
	}
}

// RequiresApprovalFor reports whether kind is declared on the job contract.
func (j *Job) RequiresApprovalFor(kind ActionKind) bool {
	for _, k := range j.RequiresApproval {
		if k == kind {
			return true
		}
	}
	return false
}

// TransitionEvent names the trigger that moves a job between statuses.
type TransitionEvent string

const (
	EventClaim    TransitionEvent = "claim"    // dispatcher hands the job to a worker
	EventHold     TransitionEvent = "hold"     // a gated action pauses the job for sign-off
	EventApprove  TransitionEvent = "approve"  // operator approves the pending action kind
	EventReject   TransitionEvent = "reject"   // operator rejects, terminal
	EventComplete TransitionEvent = "complete" // acceptance passed within caps
	EventFail     TransitionEvent = "fail"     // policy/cap/execution failure, terminal
	EventRequeue  TransitionEvent = "requeue"  // transient failure scheduled for retry
)

// transitions is the single authority on legal status moves. Anything absent
// here is an illegal transition.
var transitions = map[JobStatus]map[TransitionEvent]JobStatus{
	JobStatusQueued: {
		EventClaim:  JobStatusRunning,
		EventReject: JobStatusRejected,
		EventFail:   JobStatusFailed,
	},
	JobStatusRunning: {
		EventHold:     JobStatusAwaitingApproval,
		EventComplete: JobStatusCompleted,
		EventFail:     JobStatusFailed,
		EventReject:   JobStatusRejected,
		EventRequeue:  JobStatusQueued,
	},
	JobStatusAwaitingApproval: {
		EventApprove: JobStatusRunning,
		EventReject:  JobStatusRejected,
		EventFail:    JobStatusFailed,
	},
}

// NextStatus resolves the transition table for (current, event). ok is false
// when the move is illegal, including any move out of a terminal status.
func NextStatus(current JobStatus, event TransitionEvent) (JobStatus, bool) {
	byEvent, ok := transitions[current]
	if !ok {
		return current, false
	}
	next, ok := byEvent[event]
	if !ok {
		return current, false
	}
	return next, true
}
