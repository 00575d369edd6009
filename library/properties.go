package library

import (
	"context"
	"fmt"
	"sort"

	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"
)

type ValueKind int

const (
	ValueUnset ValueKind = iota
	ValueBool
	ValueString
	ValuePowerState
	ValueReference
)

// Value holds one property value of the kinds this client reads. Values are
// comparable, so accepted-value sets are plain slices checked with ==.
type Value struct {
	kind      ValueKind
	boolean   bool
	text      string
	reference types.ManagedObjectReference
}

func UnsetValue() Value {
	return Value{kind: ValueUnset}
}

func BoolValue(boolean bool) Value {
	return Value{kind: ValueBool, boolean: boolean}
}

func StringValue(text string) Value {
	return Value{kind: ValueString, text: text}
}

func PowerStateValue(powerState types.VirtualMachinePowerState) Value {
	return Value{kind: ValuePowerState, text: string(powerState)}
}

func ReferenceValue(reference types.ManagedObjectReference) Value {
	return Value{kind: ValueReference, reference: reference}
}

// NewValue converts a value decoded from the property collector.
func NewValue(raw interface{}) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return UnsetValue(), nil
	case bool:
		return BoolValue(typed), nil
	case *bool:
		if typed == nil {
			return UnsetValue(), nil
		}
		return BoolValue(*typed), nil
	case string:
		return StringValue(typed), nil
	case types.VirtualMachinePowerState:
		return PowerStateValue(typed), nil
	case types.ManagedObjectReference:
		return ReferenceValue(typed), nil
	case *types.ManagedObjectReference:
		if typed == nil {
			return UnsetValue(), nil
		}
		return ReferenceValue(*typed), nil
	}
	return Value{}, fmt.Errorf("unsupported property value type %T", raw)
}

func (value Value) Kind() ValueKind {
	return value.kind
}

func (value Value) Bool() (bool, bool) {
	return value.boolean, value.kind == ValueBool
}

func (value Value) Text() (string, bool) {
	return value.text, value.kind == ValueString
}

func (value Value) PowerState() (types.VirtualMachinePowerState, bool) {
	return types.VirtualMachinePowerState(value.text), value.kind == ValuePowerState
}

func (value Value) Reference() (types.ManagedObjectReference, bool) {
	return value.reference, value.kind == ValueReference
}

func (value Value) String() string {
	switch value.kind {
	case ValueBool:
		return fmt.Sprintf("%t", value.boolean)
	case ValueString, ValuePowerState:
		return value.text
	case ValueReference:
		return value.reference.String()
	}
	return "<unset>"
}

type PropertySnapshot struct {
	values map[string]Value
}

func NewPropertySnapshot(values map[string]Value) PropertySnapshot {
	copied := make(map[string]Value, len(values))
	for path, value := range values {
		copied[path] = value
	}
	return PropertySnapshot{values: copied}
}

func (snapshot PropertySnapshot) Get(path string) (Value, bool) {
	value, ok := snapshot.values[path]
	return value, ok
}

func (snapshot PropertySnapshot) Paths() []string {
	paths := make([]string, 0, len(snapshot.values))
	for path := range snapshot.values {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

type PropertyReader struct {
	collector *property.Collector
}

func NewPropertyReader(client *vim25.Client) *PropertyReader {
	return &PropertyReader{collector: property.DefaultCollector(client)}
}

func (reader *PropertyReader) Read(ctx context.Context, handle types.ManagedObjectReference, paths []string) (PropertySnapshot, error) {
	if len(paths) == 0 {
		return NewPropertySnapshot(nil), nil
	}

	var content []types.ObjectContent
	if err := reader.collector.Retrieve(ctx, []types.ManagedObjectReference{handle}, paths, &content); err != nil {
		return PropertySnapshot{}, ClassifyFault(err)
	}
	if len(content) == 0 {
		return PropertySnapshot{}, NewFault(FaultCommunication, "managed object %v not found", handle)
	}

	object := content[0]
	for _, missing := range object.MissingSet {
		kind := classifyVimFault(missing.Fault.Fault)
		if kind == FaultUnclassified {
			kind = FaultCommunication
		}
		return PropertySnapshot{}, NewFault(kind, "property %v of %v unavailable: %v", missing.Path, handle, missing.Fault.LocalizedMessage)
	}

	values := make(map[string]Value, len(paths))
	for _, path := range paths {
		values[path] = UnsetValue()
	}
	for _, dynamicProperty := range object.PropSet {
		value, err := NewValue(dynamicProperty.Val)
		if err != nil {
			return PropertySnapshot{}, fmt.Errorf("property %v of %v: %w", dynamicProperty.Name, handle, err)
		}
		values[dynamicProperty.Name] = value
	}
	return PropertySnapshot{values: values}, nil
}
