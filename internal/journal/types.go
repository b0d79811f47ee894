// Package journal persists deployment runs so that they can be inspected
// and resumed after a failure.
package journal

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Status represents the status of a deployment run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one invocation of a deployment plan against a network.
type Run struct {
	ID          string            `json:"id"`
	Plan        string            `json:"plan"`
	Network     string            `json:"network"`
	ChainID     uint64            `json:"chain_id"`
	Deployer    common.Address    `json:"deployer"`
	Params      map[string]string `json:"params,omitempty"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Records     []Record          `json:"records"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Record is the outcome of one completed step.
type Record struct {
	ID          uuid.UUID      `json:"id"`
	Step        string         `json:"step"`
	Label       string         `json:"label"`
	Contract    string         `json:"contract"`
	Address     common.Address `json:"address"`
	TxHash      *common.Hash   `json:"tx_hash,omitempty"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	Attempts    int            `json:"attempts"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Record returns the record for step, if the run has one.
func (r *Run) Record(step string) (Record, bool) {
	for _, rec := range r.Records {
		if rec.Step == step {
			return rec, true
		}
	}
	return Record{}, false
}

// CanResume reports whether the run stopped before completing.
func (r *Run) CanResume() bool {
	return r.Status == StatusFailed || r.Status == StatusRunning
}
