package scenario

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"contractkit/contracts"
	"contractkit/internal/abicodec"
	"contractkit/internal/contract"
	"contractkit/internal/descriptor"
)

// CallMode is the opcode Caller uses to reach Callee
type CallMode int

const (
	ModeCall CallMode = iota
	ModeCallCode
	ModeDelegateCall
)

// CallModes lists every mode in a stable order
var CallModes = []CallMode{ModeCall, ModeCallCode, ModeDelegateCall}

func (m CallMode) String() string {
	switch m {
	case ModeCall:
		return "CALL"
	case ModeCallCode:
		return "CALLCODE"
	case ModeDelegateCall:
		return "DELEGATECALL"
	}
	return fmt.Sprintf("CallMode(%d)", int(m))
}

// Function returns the Caller function using this mode
func (m CallMode) Function() string {
	switch m {
	case ModeCall:
		return "incCall"
	case ModeCallCode:
		return "incCallCode"
	case ModeDelegateCall:
		return "incDelegateCall"
	}
	return ""
}

// ParseCallMode accepts the mode names case-insensitively
func ParseCallMode(s string) (CallMode, error) {
	for _, m := range CallModes {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown call mode %q", s)
}

// Mutation names whose storage a cross call changes
type Mutation int

const (
	NoMutation Mutation = iota
	CalleeMutated
	CallerMutated
	BothMutated
)

func (m Mutation) String() string {
	switch m {
	case NoMutation:
		return "none"
	case CalleeMutated:
		return "callee"
	case CallerMutated:
		return "caller"
	case BothMutated:
		return "both"
	}
	return fmt.Sprintf("Mutation(%d)", int(m))
}

// CALL runs Callee's code on Callee's storage. CALLCODE and DELEGATECALL
// run it on the caller's storage.
var expectations = map[CallMode]Mutation{
	ModeCall:         CalleeMutated,
	ModeCallCode:     CallerMutated,
	ModeDelegateCall: CallerMutated,
}

// Expectation returns the mutation a mode must produce
func Expectation(mode CallMode) Mutation {
	return expectations[mode]
}

// CrossCallResult holds the counters around one cross call
type CrossCallResult struct {
	Mode         CallMode
	Expected     Mutation
	Observed     Mutation
	Caller       common.Address
	Callee       common.Address
	CallerBefore *big.Int
	CallerAfter  *big.Int
	CalleeBefore *big.Int
	CalleeAfter  *big.Int
}

// Passed reports whether exactly the expected side changed
func (r *CrossCallResult) Passed() bool { return r.Observed == r.Expected }

func (r *CrossCallResult) String() string {
	return fmt.Sprintf("%s: caller %s -> %s, callee %s -> %s, expected %s mutated, observed %s",
		r.Mode, r.CallerBefore, r.CallerAfter, r.CalleeBefore, r.CalleeAfter, r.Expected, r.Observed)
}

func observe(callerBefore, callerAfter, calleeBefore, calleeAfter *big.Int) Mutation {
	callerChanged := callerBefore.Cmp(callerAfter) != 0
	calleeChanged := calleeBefore.Cmp(calleeAfter) != 0
	switch {
	case callerChanged && calleeChanged:
		return BothMutated
	case callerChanged:
		return CallerMutated
	case calleeChanged:
		return CalleeMutated
	}
	return NoMutation
}

// RunCrossCall deploys fresh Caller and Callee instances, reads both
// counters, invokes the mode's Caller function and reads them again
func RunCrossCall(ctx context.Context, session *contract.Session, mode CallMode) (*CrossCallResult, error) {
	reg, err := contracts.Load()
	if err != nil {
		return nil, err
	}
	return runCrossCall(ctx, session, reg, mode)
}

func runCrossCall(ctx context.Context, session *contract.Session, reg *descriptor.Registry, mode CallMode) (*CrossCallResult, error) {
	fn := mode.Function()
	if fn == "" {
		return nil, fmt.Errorf("unknown call mode %d", int(mode))
	}
	callerDesc, err := reg.Get(contracts.Caller)
	if err != nil {
		return nil, err
	}
	calleeDesc, err := reg.Get(contracts.Callee)
	if err != nil {
		return nil, err
	}

	caller, err := session.Deploy(ctx, callerDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy caller: %w", err)
	}
	callee, err := session.Deploy(ctx, calleeDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy callee: %w", err)
	}

	result := &CrossCallResult{
		Mode:     mode,
		Expected: Expectation(mode),
		Caller:   caller.Address(),
		Callee:   callee.Address(),
	}
	if result.CallerBefore, result.CalleeBefore, err = counters(ctx, caller, callee); err != nil {
		return nil, err
	}
	if _, err := caller.Transact(ctx, fn, abicodec.NewAddress(callee.Address())); err != nil {
		return nil, err
	}
	if result.CallerAfter, result.CalleeAfter, err = counters(ctx, caller, callee); err != nil {
		return nil, err
	}
	result.Observed = observe(result.CallerBefore, result.CallerAfter, result.CalleeBefore, result.CalleeAfter)
	return result, nil
}

func counters(ctx context.Context, caller, callee *contract.Instance) (*big.Int, *big.Int, error) {
	callerX, err := counter(ctx, caller, "getCallerX")
	if err != nil {
		return nil, nil, err
	}
	calleeX, err := counter(ctx, callee, "getCalleeX")
	if err != nil {
		return nil, nil, err
	}
	return callerX, calleeX, nil
}

func counter(ctx context.Context, inst *contract.Instance, fn string) (*big.Int, error) {
	values, err := inst.Call(ctx, fn)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s returned %d values", fn, len(values))
	}
	n, ok := values[0].BigInt()
	if !ok {
		return nil, fmt.Errorf("%s returned %s, not an integer", fn, values[0].Tag)
	}
	return n, nil
}

// crossCallScenario adapts RunCrossCall to the Scenario interface
type crossCallScenario struct {
	mode CallMode
}

// CrossCall returns the cross-call check for mode as a Scenario
func CrossCall(mode CallMode) Scenario {
	return crossCallScenario{mode: mode}
}

func (s crossCallScenario) Name() string {
	return "crosscall-" + strings.ToLower(s.mode.String())
}

func (s crossCallScenario) Run(ctx context.Context, session *contract.Session, reg *descriptor.Registry, c *Collector) error {
	result, err := runCrossCall(ctx, session, reg, s.mode)
	if err != nil {
		return err
	}
	c.Check(fmt.Sprintf("%s via %s", s.mode, s.mode.Function()), result.Passed(), result.String())
	return nil
}
