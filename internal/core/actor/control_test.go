package actor

import (
	"testing"

	"sunfence/internal/core/domain"
	"sunfence/internal/core/service"

	"github.com/stretchr/testify/require"
)

func TestRecoverTickConvertsPanicToUnknownDecision(t *testing.T) {
	require := require.New(t)

	fallback := service.ActuatorState{Initialized: true, LastWrittenPct: 40}
	out := recoverTick(fallback, func() tickOutcome {
		panic("bad sample arithmetic")
	})

	require.Equal(domain.StateUnknown, out.decision.State)
	require.True(out.decision.ExportCosts)
	require.True(out.decision.WantEnabled)
	require.Contains(out.decision.Reason, "bad sample arithmetic")

	// nothing is written and the register state is left as it was
	require.False(out.plan.Write)
	require.Equal(fallback, out.state)
}

func TestRecoverTickPassesThroughNormalOutcome(t *testing.T) {
	require := require.New(t)

	want := tickOutcome{
		decision: domain.Decision{State: domain.StateNormalLimited, WantPct: 12},
		state:    service.ActuatorState{Initialized: true, LastWrittenPct: 12},
		plan:     service.WritePlan{Write: true, Pct: 12, Enabled: true},
	}
	out := recoverTick(service.ActuatorState{}, func() tickOutcome { return want })
	require.Equal(want, out)
}
