package library

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FaultKind int

const (
	FaultUnclassified FaultKind = iota
	FaultNotFound
	FaultPreconditionUnmet
	FaultCommunication
	FaultPermission
	FaultGuestOperations
	FaultFile
	FaultInvalidState
	FaultTimeout
	FaultCanceled
)

var faultKindNames = map[FaultKind]string{
	FaultUnclassified:      "UnclassifiedFault",
	FaultNotFound:          "NotFound",
	FaultPreconditionUnmet: "PreconditionUnmet",
	FaultCommunication:     "CommunicationFault",
	FaultPermission:        "PermissionFault",
	FaultGuestOperations:   "GuestOperationsFault",
	FaultFile:              "FileFault",
	FaultInvalidState:      "InvalidStateFault",
	FaultTimeout:           "TimeoutFault",
	FaultCanceled:          "Canceled",
}

var faultKindCodes = map[FaultKind]codes.Code{
	FaultUnclassified:      codes.Unknown,
	FaultNotFound:          codes.NotFound,
	FaultPreconditionUnmet: codes.FailedPrecondition,
	FaultCommunication:     codes.Unavailable,
	FaultPermission:        codes.PermissionDenied,
	FaultGuestOperations:   codes.FailedPrecondition,
	FaultFile:              codes.Internal,
	FaultInvalidState:      codes.Aborted,
	FaultTimeout:           codes.DeadlineExceeded,
	FaultCanceled:          codes.Canceled,
}

func (kind FaultKind) String() string {
	if name, ok := faultKindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("FaultKind(%d)", int(kind))
}

func (kind FaultKind) Code() codes.Code {
	if code, ok := faultKindCodes[kind]; ok {
		return code
	}
	return codes.Unknown
}

// Fault is a classified failure. Error returns the underlying description
// unmodified so it can be surfaced verbatim.
type Fault struct {
	Kind FaultKind
	Err  error
}

func NewFault(kind FaultKind, format string, arguments ...interface{}) *Fault {
	return &Fault{Kind: kind, Err: fmt.Errorf(format, arguments...)}
}

func (fault *Fault) Error() string {
	if fault.Err == nil {
		return fault.Kind.String()
	}
	return fault.Err.Error()
}

func (fault *Fault) Unwrap() error {
	return fault.Err
}

func (fault *Fault) GRPCStatus() *status.Status {
	return status.New(fault.Kind.Code(), fault.Error())
}

func KindOf(err error) FaultKind {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Kind
	}
	return FaultUnclassified
}

type hasMethodFault interface {
	Fault() types.BaseMethodFault
}

// ClassifyFault wraps err into a *Fault. Errors that already carry a
// classification are returned as they are.
func ClassifyFault(err error) error {
	if err == nil {
		return nil
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Fault{Kind: FaultTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Fault{Kind: FaultCanceled, Err: err}
	}

	// soap.IsSoapFault and soap.IsVimFault do not look through wrapping.
	for current := err; current != nil; current = errors.Unwrap(current) {
		switch {
		case soap.IsSoapFault(current):
			return &Fault{Kind: classifyVimFault(soap.ToSoapFault(current).VimFault()), Err: err}
		case soap.IsVimFault(current):
			return &Fault{Kind: classifyVimFault(soap.ToVimFault(current)), Err: err}
		}
	}

	var taskError hasMethodFault
	if errors.As(err, &taskError) {
		return &Fault{Kind: classifyVimFault(taskError.Fault()), Err: err}
	}

	return &Fault{Kind: FaultCommunication, Err: err}
}

func classifyVimFault(vimFault interface{}) FaultKind {
	switch addressable(vimFault).(type) {
	case types.BaseGuestOperationsFault:
		return FaultGuestOperations
	case types.BaseFileFault:
		return FaultFile
	case types.BaseInvalidState:
		return FaultInvalidState
	case *types.NoPermission, *types.NotAuthenticated, *types.InvalidLogin:
		return FaultPermission
	case *types.ManagedObjectNotFound, *types.HostCommunication, *types.HostNotConnected, *types.HostNotReachable:
		return FaultCommunication
	}
	return FaultUnclassified
}

// SOAP detail faults decode as values while task faults arrive as pointers;
// the Base* family interfaces are only implemented by the pointer forms.
func addressable(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	reflected := reflect.ValueOf(value)
	if reflected.Kind() == reflect.Ptr {
		return value
	}
	pointer := reflect.New(reflected.Type())
	pointer.Elem().Set(reflected)
	return pointer.Interface()
}
