package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"
)

type WaitState int

const (
	WaitPending WaitState = iota
	WaitSatisfied
	WaitFailed
)

func (state WaitState) String() string {
	switch state {
	case WaitPending:
		return "pending"
	case WaitSatisfied:
		return "satisfied"
	case WaitFailed:
		return "failed"
	}
	return fmt.Sprintf("WaitState(%d)", int(state))
}

type WaitCondition struct {
	Path     string
	Accepted []Value
}

func (condition WaitCondition) accepts(value Value) bool {
	for _, accepted := range condition.Accepted {
		if accepted == value {
			return true
		}
	}
	return false
}

// WaitSpec is a conjunction: every condition has to hold at the same time.
type WaitSpec struct {
	conditions []WaitCondition
}

func NewWaitSpec(paths []string, accepted [][]Value) (WaitSpec, error) {
	if len(paths) != len(accepted) {
		return WaitSpec{}, fmt.Errorf("wait spec has %v paths but %v accepted value sets", len(paths), len(accepted))
	}

	seen := make(map[string]bool, len(paths))
	conditions := make([]WaitCondition, 0, len(paths))
	for index, path := range paths {
		if path == "" {
			return WaitSpec{}, fmt.Errorf("wait spec path %v is empty", index)
		}
		if seen[path] {
			return WaitSpec{}, fmt.Errorf("wait spec path %q is repeated", path)
		}
		seen[path] = true
		conditions = append(conditions, WaitCondition{
			Path:     path,
			Accepted: append([]Value(nil), accepted[index]...),
		})
	}
	return WaitSpec{conditions: conditions}, nil
}

func (spec WaitSpec) Paths() []string {
	paths := make([]string, 0, len(spec.conditions))
	for _, condition := range spec.conditions {
		paths = append(paths, condition.Path)
	}
	return paths
}

func (spec WaitSpec) Conditions() []WaitCondition {
	return append([]WaitCondition(nil), spec.conditions...)
}

// SatisfiedBy evaluates the conditions in order against the latest known
// value of each path. A path without a known value is Unset.
func (spec WaitSpec) SatisfiedBy(latest map[string]Value) bool {
	for _, condition := range spec.conditions {
		value, ok := latest[condition.Path]
		if !ok {
			value = UnsetValue()
		}
		if !condition.accepts(value) {
			return false
		}
	}
	return true
}

type ConditionWaiter struct {
	collector *property.Collector
}

func NewConditionWaiter(client *vim25.Client) *ConditionWaiter {
	return &ConditionWaiter{collector: property.DefaultCollector(client)}
}

// Wait blocks until handle's properties satisfy spec. A timeout <= 0 waits
// until the context ends. The temporary property collector is destroyed on
// every exit path.
func (waiter *ConditionWaiter) Wait(ctx context.Context, handle types.ManagedObjectReference, spec WaitSpec, timeout time.Duration) (WaitState, error) {
	if len(spec.conditions) == 0 {
		return WaitSatisfied, nil
	}

	waitContext := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitContext, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	state := WaitPending
	latest := make(map[string]Value, len(spec.conditions))
	var decodeError error

	waitError := property.Wait(waitContext, waiter.collector, handle, spec.Paths(), func(changes []types.PropertyChange) bool {
		for _, change := range changes {
			if change.Op == types.PropertyChangeOpRemove {
				delete(latest, change.Name)
				continue
			}
			value, err := NewValue(change.Val)
			if err != nil {
				decodeError = fmt.Errorf("property %v of %v: %w", change.Name, handle, err)
				return true
			}
			latest[change.Name] = value
		}
		log.Tracef("Property wait on %v observed %v", handle, latest)

		if spec.SatisfiedBy(latest) {
			state = WaitSatisfied
			return true
		}
		return false
	})

	if state == WaitSatisfied && waitError == nil {
		return WaitSatisfied, nil
	}
	if decodeError != nil {
		return WaitFailed, decodeError
	}
	if contextError := waitContext.Err(); contextError != nil {
		if errors.Is(contextError, context.DeadlineExceeded) && ctx.Err() == nil {
			return WaitFailed, NewFault(FaultTimeout, "timeout (%v) waiting for %v on %v", timeout, spec.Paths(), handle)
		}
		return WaitFailed, ClassifyFault(contextError)
	}
	if waitError != nil {
		return WaitFailed, ClassifyFault(waitError)
	}
	return WaitFailed, NewFault(FaultCommunication, "property wait on %v ended before %v was satisfied", handle, spec.Paths())
}
