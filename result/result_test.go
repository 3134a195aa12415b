package result_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/result"
)

func TestImplicitKeepAppendedWhenNothingDelivers(t *testing.T) {
	acc := result.New()
	actions := acc.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "keep", actions[0].Kind)
}

func TestDiscardSuppressesImplicitKeep(t *testing.T) {
	acc := result.New()
	require.NoError(t, acc.Add("discard", "", nil, nil))
	actions := acc.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "discard", actions[0].Kind)
}

func TestFileintoProvidesDeliverySuppressingImplicitKeep(t *testing.T) {
	acc := result.New()
	acc.AddKind(&result.Kind{Name: "fileinto", ProvidesDelivery: true})
	require.NoError(t, acc.Add("fileinto", "Inbox/sale", nil, nil))
	actions := acc.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "fileinto", actions[0].Kind)
}

func TestDuplicateRedirectToSameAddressMerges(t *testing.T) {
	acc := result.New()
	require.NoError(t, acc.Add("redirect", "a@example.com", nil, nil))
	require.NoError(t, acc.Add("redirect", "a@example.com", nil, nil))
	actions := acc.Actions()
	require.Len(t, actions, 1)
}

func TestCommitRunsExecuteForEveryAction(t *testing.T) {
	acc := result.New()
	var executed []string
	acc.AddKind(&result.Kind{
		Name:             "keep",
		ProvidesDelivery: true,
		Execute: func(a *result.Action) error {
			executed = append(executed, "keep")
			return nil
		},
	})
	require.NoError(t, acc.Commit())
	assert.Equal(t, []string{"keep"}, executed)
}

func TestCommitRollsBackOnLaterExecuteFailure(t *testing.T) {
	acc := result.New()
	var rolledBack []string
	acc.AddKind(&result.Kind{
		Name:             "keep",
		ProvidesDelivery: true,
		Execute:          func(a *result.Action) error { return nil },
		Rollback:         func(a *result.Action) error { rolledBack = append(rolledBack, "keep"); return nil },
	})
	acc.AddKind(&result.Kind{
		Name:             "fileinto",
		ProvidesDelivery: true,
		Execute:          func(a *result.Action) error { return assert.AnError },
	})
	require.NoError(t, acc.Add("keep", "", nil, nil))
	require.NoError(t, acc.Add("fileinto", "Inbox", nil, nil))

	err := acc.Commit()
	require.Error(t, err)
	assert.Equal(t, []string{"keep"}, rolledBack)
}
