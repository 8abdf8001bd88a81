package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/polis-chain/pkg/domain"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		source    string
		executes  bool
		executed  domain.Step
		next      domain.Step
		policy    domain.DispatchPolicy
		converges bool
	}{
		{source: "cli", executes: true, executed: domain.StepOne, next: domain.StepOne, policy: domain.PolicyFanOut},
		{source: "step-one", executes: true, executed: domain.StepTwo, next: domain.StepTwo, policy: domain.PolicyForward},
		{source: "step-two", executes: true, executed: domain.StepThree, next: domain.StepThree, policy: domain.PolicyTerminal, converges: true},
		{source: "step-three", next: domain.StepThree, policy: domain.PolicyTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			tr, err := Resolve(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.source, tr.Current.String())
			assert.Equal(t, tt.executes, tr.Executes)
			if tt.executes {
				assert.Equal(t, tt.executed, tr.Executed)
			}
			assert.Equal(t, tt.next, tr.Next)
			assert.Equal(t, tt.policy, tr.Policy)
			assert.Equal(t, tt.converges, tr.Converges)
		})
	}
}

func TestResolve_UnrecognisedSource(t *testing.T) {
	for _, source := range []string{"", "step-four", "CLI", "Step-One", " cli"} {
		_, err := Resolve(source)
		assert.ErrorIs(t, err, domain.ErrUnrecognisedSource, "source %q", source)
		assert.True(t, IsRoutingError(err))
	}
}

func TestResolve_PureAndIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source := rapid.OneOf(
			rapid.SampledFrom([]string{"cli", "step-one", "step-two", "step-three"}),
			rapid.String(),
		).Draw(t, "source")

		first, err1 := Resolve(source)
		second, err2 := Resolve(source)

		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("resolve %q disagreed on error: %v vs %v", source, err1, err2)
		}
		if first != second {
			t.Fatalf("resolve %q disagreed: %+v vs %+v", source, first, second)
		}
		if err1 == nil {
			again, err := Resolve(first.Next.String())
			if err != nil {
				t.Fatalf("next step %q must itself resolve: %v", first.Next, err)
			}
			if again.Current != first.Next {
				t.Fatalf("next step %q resolved to %q", first.Next, again.Current)
			}
		}
	})
}
