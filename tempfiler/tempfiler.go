package main

import (
	"context"
	"fmt"
	"time"

	"github.com/open-cyber-range/vmware-guest-tempfile/library"
	log "github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/vim25/types"
)

type WorkflowState int

const (
	StateResolving WorkflowState = iota
	StateCheckingPower
	StateWaitingReady
	StateAuthenticating
	StateInvoking
	StateDone
	StateAborted
)

var workflowStateNames = map[WorkflowState]string{
	StateResolving:      "resolving",
	StateCheckingPower:  "checking-power",
	StateWaitingReady:   "waiting-ready",
	StateAuthenticating: "authenticating",
	StateInvoking:       "invoking",
	StateDone:           "done",
	StateAborted:        "aborted",
}

func (state WorkflowState) String() string {
	if name, ok := workflowStateNames[state]; ok {
		return name
	}
	return fmt.Sprintf("WorkflowState(%d)", int(state))
}

type inventoryResolver interface {
	Resolve(ctx context.Context, root types.ManagedObjectReference, typeFilter string, name string) (*types.ManagedObjectReference, error)
}

type propertyReader interface {
	Read(ctx context.Context, handle types.ManagedObjectReference, paths []string) (library.PropertySnapshot, error)
}

type conditionWaiter interface {
	Wait(ctx context.Context, handle types.ManagedObjectReference, spec library.WaitSpec, timeout time.Duration) (library.WaitState, error)
}

type guestOperationInvoker interface {
	CreateTemporaryFile(ctx context.Context, fileManager types.ManagedObjectReference, virtualMachine types.ManagedObjectReference, credential library.GuestCredential, prefix string, suffix string, directoryPath string) (string, error)
}

// Outcome is the terminal result of a run. Path is only set when State is
// StateDone; Reason is only meaningful when State is StateAborted.
type Outcome struct {
	State   WorkflowState
	Path    string
	Reason  library.FaultKind
	Message string
}

type Orchestrator struct {
	Session       library.Session
	Configuration library.Configuration
	Resolver      inventoryResolver
	Reader        propertyReader
	Waiter        conditionWaiter
	Invoker       guestOperationInvoker
	Logger        *log.Entry

	state WorkflowState
}

func NewOrchestrator(session library.Session, configuration library.Configuration, logger *log.Entry) *Orchestrator {
	return &Orchestrator{
		Session:       session,
		Configuration: configuration,
		Resolver:      library.NewInventoryResolver(library.ContainerViewEnumerator(session.Client)),
		Reader:        library.NewPropertyReader(session.Client),
		Waiter:        library.NewConditionWaiter(session.Client),
		Invoker:       library.NewGuestOperationInvoker(session.Client),
		Logger:        logger,
	}
}

func (orchestrator *Orchestrator) transition(state WorkflowState) {
	orchestrator.Logger.Debugf("Workflow %v -> %v", orchestrator.state, state)
	orchestrator.state = state
}

func (orchestrator *Orchestrator) abort(reason library.FaultKind, message string) Outcome {
	orchestrator.transition(StateAborted)
	return Outcome{State: StateAborted, Reason: reason, Message: message}
}

func (orchestrator *Orchestrator) fail(err error) (Outcome, error) {
	err = library.ClassifyFault(err)
	return orchestrator.abort(library.KindOf(err), err.Error()), err
}

// Run executes the workflow once. Not found and not powered on end the run
// without an error; every other fault is returned as it was raised.
func (orchestrator *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	configuration := orchestrator.Configuration
	vmName := configuration.VmName
	orchestrator.state = StateResolving

	virtualMachine, err := orchestrator.Resolver.Resolve(ctx, orchestrator.Session.RootFolder, library.VirtualMachineType, vmName)
	if err != nil {
		return orchestrator.fail(err)
	}
	if virtualMachine == nil {
		return orchestrator.abort(library.FaultNotFound, fmt.Sprintf("Virtual Machine %v not found.", vmName)), nil
	}
	orchestrator.Logger.Infof("Virtual Machine %v found", vmName)

	orchestrator.transition(StateCheckingPower)
	snapshot, err := orchestrator.Reader.Read(ctx, *virtualMachine, []string{library.PowerStatePath})
	if err != nil {
		return orchestrator.fail(err)
	}
	powerStateValue, _ := snapshot.Get(library.PowerStatePath)
	if powerState, ok := powerStateValue.PowerState(); !ok || powerState != types.VirtualMachinePowerStatePoweredOn {
		return orchestrator.abort(library.FaultPreconditionUnmet, fmt.Sprintf("VirtualMachine: %v needs to be powered on", vmName)), nil
	}

	orchestrator.transition(StateWaitingReady)
	readySpec, err := library.NewWaitSpec(
		[]string{library.GuestOperationsReadyPath},
		[][]library.Value{{library.BoolValue(true)}},
	)
	if err != nil {
		return orchestrator.fail(err)
	}
	if _, err = orchestrator.Waiter.Wait(ctx, *virtualMachine, readySpec, configuration.ReadyTimeout()); err != nil {
		return orchestrator.fail(err)
	}
	orchestrator.Logger.Info("Guest Operations are ready for the VM")

	orchestrator.transition(StateAuthenticating)
	credential := library.NewGuestCredential(configuration.GuestUser, configuration.GuestPassword)

	orchestrator.transition(StateInvoking)
	managerSnapshot, err := orchestrator.Reader.Read(ctx, orchestrator.Session.GuestOperationsManager, []string{library.GuestOperationsFileManager})
	if err != nil {
		return orchestrator.fail(err)
	}
	fileManagerValue, _ := managerSnapshot.Get(library.GuestOperationsFileManager)
	fileManager, ok := fileManagerValue.Reference()
	if !ok {
		return orchestrator.fail(library.NewFault(library.FaultGuestOperations, "guest file manager is not available on %v", orchestrator.Session.GuestOperationsManager))
	}

	orchestrator.Logger.Info("Executing CreateTemporaryFile guest operation")
	path, err := orchestrator.Invoker.CreateTemporaryFile(ctx, fileManager, *virtualMachine, credential, configuration.Prefix, configuration.Suffix, configuration.DirectoryPath)
	if err != nil {
		return orchestrator.fail(err)
	}

	orchestrator.transition(StateDone)
	return Outcome{
		State:   StateDone,
		Path:    path,
		Message: fmt.Sprintf("Temporary file was successfully created at: %v inside the guest", path),
	}, nil
}
