package keep

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/bytecodealliance/wasmtime-go/v27"

	"github.com/wasmkeep/wasmkeep/internal/attest"
	"github.com/wasmkeep/wasmkeep/internal/descriptors"
	"github.com/wasmkeep/wasmkeep/internal/identity"
	"github.com/wasmkeep/wasmkeep/internal/wasihost"
	"github.com/wasmkeep/wasmkeep/internal/workload"
)

// syntheticArgv0 is pushed ahead of every user argument, matching the
// guest's expectation of a conventional argv[0].
const syntheticArgv0 = "main.wasm"

// defaultEntry is the module's default exported entry point.
const defaultEntry = "_start"

// Keep runs exactly one workload package from boot to exit. A Keep value
// is single-use: call Execute once.
type Keep struct {
	state   *StateMachine
	metrics *Metrics
	events  chan Event
}

// New creates a Keep. events may be nil if the caller does not want to
// observe lifecycle events.
func New(events chan Event) *Keep {
	k := &Keep{metrics: NewMetrics(), events: events}
	k.state = NewStateMachine(func(from, to Phase) {
		log.Printf("[DEBUG] keep: %s -> %s", from, to)
		k.emit(NewPhaseChangedEvent(from, to))
	})
	return k
}

func (k *Keep) emit(e Event) {
	if k.events == nil {
		return
	}
	select {
	case k.events <- e:
	default:
	}
}

// Phase returns the current invocation phase.
func (k *Keep) Phase() Phase { return k.state.Phase() }

// Execute runs pkg to completion: issuing identity, provisioning
// descriptors, compiling and linking the guest module, and invoking its
// default entry point. It implements the orchestration steps exactly
// once; Execute must not be called twice on the same Keep.
func (k *Keep) Execute(ctx context.Context, pkg workload.Package) (results []wasmtime.Val, err error) {
	defer func() {
		if err != nil {
			_ = k.state.Transition(PhaseFailed)
			code := ErrUnsupported
			for _, c := range []string{ErrIdentity, ErrProvisioning, ErrCompile, ErrTrap} {
				if strings.HasPrefix(err.Error(), "keep: "+c+":") {
					code = c
					break
				}
			}
			k.emit(NewKeepErrorEvent(code, err.Error()))
		}
	}()

	if err := k.state.Transition(PhaseIssuing); err != nil {
		return nil, fmt.Errorf("keep: %w", err)
	}
	material, err := k.issueIdentity(ctx, pkg.Config)
	if err != nil {
		return nil, fmt.Errorf("keep: %s: %w", ErrIdentity, err)
	}

	if err := k.state.Transition(PhaseProvisioning); err != nil {
		return nil, fmt.Errorf("keep: %w", err)
	}
	table, names, err := descriptors.Provision(pkg.Config.Files, material)
	if err != nil {
		return nil, fmt.Errorf("keep: %s: %w", ErrProvisioning, err)
	}
	for i, name := range names {
		k.metrics.RecordDescriptor()
		k.emit(NewDescriptorProvisionedEvent(i, name, pkg.Config.Files[i].Kind.String()))
	}

	engine := wasmtime.NewEngineWithConfig(engineConfig())
	linker := wasmtime.NewLinker(engine)
	store := wasmtime.NewStore(engine)

	wasiCtx := &wasihost.Ctx{
		Table: table,
		Args:  append([]string{syntheticArgv0}, pkg.Config.Args...),
		Env:   buildEnv(names, pkg.Config.Env),

		OnBytesWritten: func(n int) { k.metrics.RecordBytesSent(uint64(n)) },
		OnBytesRead:    func(n int) { k.metrics.RecordBytesReceived(uint64(n)) },
	}
	if err := wasihost.RegisterPreview1(linker, wasiCtx); err != nil {
		return nil, fmt.Errorf("keep: %s: register preview1: %w", ErrCompile, err)
	}
	if err := wasihost.RegisterPreview0(linker, wasiCtx); err != nil {
		return nil, fmt.Errorf("keep: %s: register preview0: %w", ErrCompile, err)
	}
	if err := wasihost.RegisterAttestationBridge(linker, attest.Platform(), func(nonceLen, reportLen int) {
		k.metrics.RecordAttestationCall()
		k.emit(NewAttestationReportedEvent(nonceLen, reportLen))
	}); err != nil {
		return nil, fmt.Errorf("keep: %s: register attestation bridge: %w", ErrCompile, err)
	}

	module, err := wasmtime.NewModule(engine, pkg.ModuleBytes)
	if err != nil {
		return nil, fmt.Errorf("keep: %s: compile module: %w", ErrCompile, err)
	}
	instance, err := linker.Instantiate(store, module)
	if err != nil {
		return nil, fmt.Errorf("keep: %s: instantiate: %w", ErrCompile, err)
	}

	entry := instance.GetExport(store, defaultEntry)
	if entry == nil || entry.Func() == nil {
		return nil, fmt.Errorf("keep: %s: module has no %q export", ErrCompile, defaultEntry)
	}

	if err := k.state.Transition(PhaseRunning); err != nil {
		return nil, fmt.Errorf("keep: %w", err)
	}
	k.metrics.RecordInvocationStart()

	results, trapped, exitCode, err := k.invoke(store, entry.Func())
	if err != nil {
		k.emit(NewKeepExitedEvent(nil, trapped, err.Error()))
		return nil, fmt.Errorf("keep: %s: %w", ErrTrap, err)
	}

	if err := k.state.Transition(PhaseDone); err != nil {
		return nil, fmt.Errorf("keep: %w", err)
	}
	k.emit(NewKeepExitedEvent(exitCode, trapped, ""))
	return results, nil
}

// callEntry invokes the module's entry point. It is a variable, not a
// direct call, so tests can substitute a fake sandbox without linking a
// real .wasm binary and wasmtime engine.
var callEntry = func(store wasmtime.Storelike, fn *wasmtime.Func) (any, error) {
	return fn.Call(store)
}

// invoke calls fn and interprets its termination: a normal return is
// success; a trap whose origin is an ExitError with code 0 is also
// success (the guest exited cleanly via proc_exit(0)); anything else is
// fatal.
func (k *Keep) invoke(store wasmtime.Storelike, fn *wasmtime.Func) (results []wasmtime.Val, trapped bool, exitCode *int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			if exit, ok := r.(wasihost.ExitError); ok {
				code := exit.Code
				exitCode = &code
				trapped = true
				if code != 0 {
					err = fmt.Errorf("guest exited with code %d", code)
				}
				return
			}
			if trap, ok := r.(*wasmtime.Trap); ok {
				trapped = true
				err = fmt.Errorf("guest trapped: %w", trap)
				return
			}
			panic(r)
		}
	}()

	val, callErr := callEntry(store, fn)
	if callErr != nil {
		trapped = true
		return nil, true, nil, callErr
	}
	return normalizeResults(val), false, nil, nil
}

func normalizeResults(v any) []wasmtime.Val {
	if v == nil {
		return nil
	}
	if val, ok := v.(wasmtime.Val); ok {
		return []wasmtime.Val{val}
	}
	if vals, ok := v.([]wasmtime.Val); ok {
		return vals
	}
	return nil
}

func (k *Keep) issueIdentity(ctx context.Context, cfg descriptors.Config) (descriptors.Certificate, error) {
	priv, csr, err := identity.Generate()
	if err != nil {
		return descriptors.Certificate{}, err
	}

	if cfg.Steward != nil {
		certChain, err := identity.Steward(ctx, cfg.Steward, csr, attest.Platform())
		if err != nil {
			return descriptors.Certificate{}, err
		}
		return descriptors.Certificate{PrivateKey: priv, Chain: certChain}, nil
	}

	certChain, err := identity.SelfSigned(priv)
	if err != nil {
		return descriptors.Certificate{}, err
	}
	return descriptors.Certificate{PrivateKey: priv, Chain: certChain}, nil
}

// buildEnv pushes FD_COUNT, FD_NAMES, then every user env var in order —
// the FD binding always happens first, immediately before user env.
func buildEnv(names []string, userEnv []descriptors.EnvVar) []string {
	env := make([]string, 0, len(userEnv)+2)
	env = append(env, "FD_COUNT="+strconv.Itoa(len(names)))
	env = append(env, "FD_NAMES="+strings.Join(names, ":"))
	for _, e := range userEnv {
		env = append(env, e.Name+"="+e.Value)
	}
	return env
}

func engineConfig() *wasmtime.Config {
	cfg := wasmtime.NewConfig()
	cfg.SetWasmMultiMemory(true)
	cfg.SetStaticMemoryMaximumSize(0)
	cfg.SetStaticMemoryGuardSize(0)
	cfg.SetDynamicMemoryGuardSize(0)
	cfg.SetDynamicMemoryReservedForGrowth(16 * 1024 * 1024)
	return cfg
}
