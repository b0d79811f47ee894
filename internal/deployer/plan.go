// Package deployer runs deployment plans: ordered graphs of contract
// deployments and address lookups, executed one confirmed step at a time.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDuplicateStep     = errors.New("deployer: duplicate step name")
	ErrUnknownDependency = errors.New("deployer: unknown dependency")
	ErrCycle             = errors.New("deployer: dependency cycle")
	ErrStepFailed        = errors.New("deployer: step failed")
	ErrZeroAddress       = errors.New("deployer: step produced the zero address")
)

// Outcome is what a step produces.
type Outcome struct {
	Address     common.Address
	TxHash      *common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Step is one node of a deployment plan.
type Step struct {
	// Name identifies the step in dependencies and the journal.
	Name string
	// Label is printed as "<Label> address: 0x...".
	Label string
	// Contract names the contract living at the produced address.
	Contract string
	// Artifacts lists the compiled artifacts the step needs.
	Artifacts []string
	// DependsOn lists steps whose addresses this step reads.
	DependsOn []string
	// Run performs the step.
	Run func(ctx context.Context, env *Env) (Outcome, error)
}

// Plan is a named set of steps.
type Plan struct {
	Name  string
	Steps []Step
	// Params are recorded with each run; a run can only be resumed with
	// the same params.
	Params map[string]string
}

// Order returns the steps in execution order. A step runs after all of
// its dependencies; among ready steps the declaration order wins.
func (p *Plan) Order() ([]Step, error) {
	index := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		if s.Name == "" {
			return nil, fmt.Errorf("deployer: step %d has no name", i)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.Name)
		}
		index[s.Name] = i
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, s.Name, dep)
			}
		}
	}

	placed := make(map[string]bool, len(p.Steps))
	order := make([]Step, 0, len(p.Steps))
	for len(order) < len(p.Steps) {
		progressed := false
		for _, s := range p.Steps {
			if placed[s.Name] || !ready(s, placed) {
				continue
			}
			placed[s.Name] = true
			order = append(order, s)
			progressed = true
			break
		}
		if !progressed {
			var stuck []string
			for _, s := range p.Steps {
				if !placed[s.Name] {
					stuck = append(stuck, s.Name)
				}
			}
			return nil, fmt.Errorf("%w among %s", ErrCycle, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

func ready(s Step, placed map[string]bool) bool {
	for _, dep := range s.DependsOn {
		if !placed[dep] {
			return false
		}
	}
	return true
}

// Artifacts returns every artifact the plan needs, in first-use order.
func (p *Plan) Artifacts() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range p.Steps {
		for _, a := range s.Artifacts {
			if !seen[a] {
				seen[a] = true
				names = append(names, a)
			}
		}
	}
	return names
}
