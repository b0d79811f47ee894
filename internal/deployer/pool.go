package deployer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// Pool plan step names.
const (
	StepToken           = "token"
	StepOracleKeeper    = "oracle_keeper"
	StepOracle          = "oracle"
	StepPool            = "pool"
	StepPositionManager = "position_manager"
	StepInsuranceFund   = "insurance_fund"
)

// Oracle modes.
const (
	OracleKeeper = "keeper"
	OracleDirect = "direct"
)

// PoolParams parameterizes the pool plan.
type PoolParams struct {
	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	// OracleMode is OracleKeeper (deploy a keeper and take its mock
	// oracle) or OracleDirect (deploy a MockOracle).
	OracleMode string
	Staleness  time.Duration
}

// PoolPlan returns the pool suite deployment:
// token, oracle, pool, then the pool's position manager and insurance
// fund.
func PoolPlan(p PoolParams) (*Plan, error) {
	if p.Staleness < time.Second {
		return nil, fmt.Errorf("deployer: staleness %s is below one second", p.Staleness)
	}
	staleness := big.NewInt(int64(p.Staleness / time.Second))

	token := Step{
		Name:      StepToken,
		Label:     p.TokenSymbol,
		Contract:  "MockERC20",
		Artifacts: []string{"MockERC20"},
		Run: func(ctx context.Context, env *Env) (Outcome, error) {
			return env.Deploy(ctx, "MockERC20", p.TokenName, p.TokenSymbol, p.TokenDecimals)
		},
	}

	var oracleSteps []Step
	switch p.OracleMode {
	case OracleKeeper, "":
		oracleSteps = []Step{
			{
				Name:      StepOracleKeeper,
				Label:     "Oracle keeper",
				Contract:  "OracleKeeper",
				Artifacts: []string{"OracleKeeper"},
				DependsOn: []string{StepToken},
				Run: func(ctx context.Context, env *Env) (Outcome, error) {
					t := env.Address(StepToken)
					return env.Deploy(ctx, "OracleKeeper", staleness, t, t, t)
				},
			},
			{
				Name:      StepOracle,
				Label:     "Oracle",
				Contract:  "MockOracle",
				Artifacts: []string{"OracleKeeper"},
				DependsOn: []string{StepOracleKeeper, StepToken},
				Run: func(ctx context.Context, env *Env) (Outcome, error) {
					return env.CallAddress(ctx, "OracleKeeper", StepOracleKeeper, "getMockAddress", env.Address(StepToken))
				},
			},
		}
	case OracleDirect:
		oracleSteps = []Step{
			{
				Name:      StepOracle,
				Label:     "Oracle",
				Contract:  "MockOracle",
				Artifacts: []string{"MockOracle"},
				DependsOn: []string{StepToken},
				Run: func(ctx context.Context, env *Env) (Outcome, error) {
					return env.Deploy(ctx, "MockOracle", staleness, env.Address(StepToken))
				},
			},
		}
	default:
		return nil, fmt.Errorf("deployer: unknown oracle mode %q", p.OracleMode)
	}

	pool := []Step{
		{
			Name:      StepPool,
			Label:     "Pool",
			Contract:  "BasePool",
			Artifacts: []string{"BasePool"},
			DependsOn: []string{StepToken, StepOracle},
			Run: func(ctx context.Context, env *Env) (Outcome, error) {
				return env.Deploy(ctx, "BasePool", env.Address(StepToken), env.Address(StepOracle))
			},
		},
		{
			Name:      StepPositionManager,
			Label:     "PositionManager",
			Contract:  "PositionManager",
			Artifacts: []string{"BasePool"},
			DependsOn: []string{StepPool},
			Run: func(ctx context.Context, env *Env) (Outcome, error) {
				return env.CallAddress(ctx, "BasePool", StepPool, "position_manager_address")
			},
		},
		{
			Name:      StepInsuranceFund,
			Label:     "InsuranceFund",
			Contract:  "InsuranceFund",
			Artifacts: []string{"BasePool"},
			DependsOn: []string{StepPool},
			Run: func(ctx context.Context, env *Env) (Outcome, error) {
				return env.CallAddress(ctx, "BasePool", StepPool, "insurance_fund_address")
			},
		},
	}

	mode := p.OracleMode
	if mode == "" {
		mode = OracleKeeper
	}

	steps := append([]Step{token}, oracleSteps...)
	steps = append(steps, pool...)
	return &Plan{
		Name:  "pool",
		Steps: steps,
		Params: map[string]string{
			"token.name":       p.TokenName,
			"token.symbol":     p.TokenSymbol,
			"token.decimals":   strconv.Itoa(int(p.TokenDecimals)),
			"oracle.mode":      mode,
			"oracle.staleness": p.Staleness.String(),
		},
	}, nil
}
