package adapter

import "context"

// ArtifactStore owns the per-job artifact directory. Directory name is the
// job id; the contract files inside it are what completion checks inspect.
type ArtifactStore interface {
	// EnsureDir creates the job's directory if needed and returns its path.
	EnsureDir(jobID string) (string, error)
	// AppendRunLog appends one JSON line to run.jsonl.
	AppendRunLog(ctx context.Context, jobID string, entry map[string]interface{}) error
	WriteArtifact(ctx context.Context, jobID, name string, data []byte) error
	ReadArtifact(ctx context.Context, jobID, name string) ([]byte, error)
	List(ctx context.Context, jobID string) ([]string, error)
}
