package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"
)

func powerStateSpec(t *testing.T, states ...types.VirtualMachinePowerState) WaitSpec {
	t.Helper()
	accepted := make([]Value, 0, len(states))
	for _, state := range states {
		accepted = append(accepted, PowerStateValue(state))
	}
	spec, err := NewWaitSpec([]string{PowerStatePath}, [][]Value{accepted})
	require.NoError(t, err)
	return spec
}

func TestNewWaitSpecValidation(t *testing.T) {
	t.Parallel()
	_, err := NewWaitSpec([]string{PowerStatePath}, nil)
	assert.Error(t, err)

	_, err = NewWaitSpec([]string{""}, [][]Value{{BoolValue(true)}})
	assert.Error(t, err)

	_, err = NewWaitSpec([]string{PowerStatePath, PowerStatePath}, [][]Value{{BoolValue(true)}, {BoolValue(false)}})
	assert.Error(t, err)

	spec, err := NewWaitSpec([]string{GuestOperationsReadyPath, PowerStatePath}, [][]Value{{BoolValue(true)}, {}})
	require.NoError(t, err)
	assert.Equal(t, []string{GuestOperationsReadyPath, PowerStatePath}, spec.Paths())
	assert.Len(t, spec.Conditions(), 2)
}

func TestSatisfiedByIsConjunction(t *testing.T) {
	t.Parallel()
	spec, err := NewWaitSpec(
		[]string{PowerStatePath, GuestOperationsReadyPath},
		[][]Value{
			{PowerStateValue(types.VirtualMachinePowerStatePoweredOn)},
			{BoolValue(true)},
		},
	)
	require.NoError(t, err)

	assert.False(t, spec.SatisfiedBy(nil))
	assert.False(t, spec.SatisfiedBy(map[string]Value{
		PowerStatePath: PowerStateValue(types.VirtualMachinePowerStatePoweredOn),
	}))
	assert.False(t, spec.SatisfiedBy(map[string]Value{
		PowerStatePath:           PowerStateValue(types.VirtualMachinePowerStatePoweredOn),
		GuestOperationsReadyPath: BoolValue(false),
	}))
	assert.True(t, spec.SatisfiedBy(map[string]Value{
		PowerStatePath:           PowerStateValue(types.VirtualMachinePowerStatePoweredOn),
		GuestOperationsReadyPath: BoolValue(true),
	}))
}

func TestSatisfiedByAcceptsUnset(t *testing.T) {
	t.Parallel()
	spec, err := NewWaitSpec([]string{GuestOperationsReadyPath}, [][]Value{{UnsetValue(), BoolValue(false)}})
	require.NoError(t, err)

	assert.True(t, spec.SatisfiedBy(nil))
	assert.True(t, spec.SatisfiedBy(map[string]Value{GuestOperationsReadyPath: BoolValue(false)}))
	assert.False(t, spec.SatisfiedBy(map[string]Value{GuestOperationsReadyPath: BoolValue(true)}))
}

func TestWaitEmptySpec(t *testing.T) {
	t.Parallel()
	state, err := (&ConditionWaiter{}).Wait(context.Background(), testVirtualMachine, WaitSpec{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, WaitSatisfied, state)
}

func TestWaitAlreadySatisfied(t *testing.T) {
	simulator.Test(func(ctx context.Context, client *vim25.Client) {
		handle := simulatorVirtualMachine(ctx, t, client, "DC0_H0_VM0")

		state, err := NewConditionWaiter(client).Wait(ctx, handle, powerStateSpec(t, types.VirtualMachinePowerStatePoweredOn), 0)
		require.NoError(t, err)
		assert.Equal(t, WaitSatisfied, state)
	})
}

func TestWaitObservesChange(t *testing.T) {
	simulator.Test(func(ctx context.Context, client *vim25.Client) {
		handle := simulatorVirtualMachine(ctx, t, client, "DC0_H0_VM0")

		powerOff := make(chan error, 1)
		go func() {
			time.Sleep(200 * time.Millisecond)
			task, err := object.NewVirtualMachine(client, handle).PowerOff(ctx)
			if err == nil {
				err = task.Wait(ctx)
			}
			powerOff <- err
		}()

		state, err := NewConditionWaiter(client).Wait(ctx, handle, powerStateSpec(t, types.VirtualMachinePowerStatePoweredOff), 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, WaitSatisfied, state)
		require.NoError(t, <-powerOff)
	})
}

func TestWaitTimeout(t *testing.T) {
	simulator.Test(func(ctx context.Context, client *vim25.Client) {
		handle := simulatorVirtualMachine(ctx, t, client, "DC0_H0_VM1")
		timeout := 300 * time.Millisecond

		started := time.Now()
		state, err := NewConditionWaiter(client).Wait(ctx, handle, powerStateSpec(t, types.VirtualMachinePowerStateSuspended), timeout)
		elapsed := time.Since(started)

		assert.Equal(t, WaitFailed, state)
		assert.Equal(t, FaultTimeout, KindOf(err))
		assert.True(t, elapsed >= timeout, "returned after %v", elapsed)
		assert.True(t, elapsed < 10*time.Second, "returned after %v", elapsed)
	})
}

func TestWaitCanceled(t *testing.T) {
	simulator.Test(func(ctx context.Context, client *vim25.Client) {
		handle := simulatorVirtualMachine(ctx, t, client, "DC0_H0_VM1")

		waitContext, cancel := context.WithCancel(ctx)
		time.AfterFunc(200*time.Millisecond, cancel)

		state, err := NewConditionWaiter(client).Wait(waitContext, handle, powerStateSpec(t, types.VirtualMachinePowerStateSuspended), time.Minute)
		assert.Equal(t, WaitFailed, state)
		assert.Equal(t, FaultCanceled, KindOf(err))
	})
}
