package library

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

// GuestCredential authenticates a single guest operation. It is never stored
// and its printable forms leave the password out.
type GuestCredential struct {
	Username           string
	Password           string
	InteractiveSession bool
}

// NewGuestCredential never attaches to an interactive desktop session.
// Correctness of the credential is only checked by the guest.
func NewGuestCredential(username string, password string) GuestCredential {
	return GuestCredential{
		Username:           username,
		Password:           password,
		InteractiveSession: false,
	}
}

func (credential GuestCredential) Authentication() *types.NamePasswordAuthentication {
	return &types.NamePasswordAuthentication{
		Username: credential.Username,
		Password: credential.Password,
		GuestAuthentication: types.GuestAuthentication{
			InteractiveSession: credential.InteractiveSession,
		},
	}
}

func (credential GuestCredential) String() string {
	return fmt.Sprintf("GuestCredential{Username: %q, InteractiveSession: %t}", credential.Username, credential.InteractiveSession)
}

func (credential GuestCredential) GoString() string {
	return credential.String()
}

type GuestOperationInvoker struct {
	roundTripper soap.RoundTripper
}

func NewGuestOperationInvoker(roundTripper soap.RoundTripper) *GuestOperationInvoker {
	return &GuestOperationInvoker{roundTripper: roundTripper}
}

// CreateTemporaryFile asks the guest to create a uniquely named file and
// returns its absolute path. Empty prefix, suffix and directoryPath are sent
// as they are; an empty directoryPath selects the guest's temp directory.
func (invoker *GuestOperationInvoker) CreateTemporaryFile(ctx context.Context, fileManager types.ManagedObjectReference, virtualMachine types.ManagedObjectReference, credential GuestCredential, prefix string, suffix string, directoryPath string) (string, error) {
	request := types.CreateTemporaryFileInGuest{
		This:          fileManager,
		Vm:            virtualMachine,
		Auth:          credential.Authentication(),
		Prefix:        prefix,
		Suffix:        suffix,
		DirectoryPath: directoryPath,
	}

	response, err := methods.CreateTemporaryFileInGuest(ctx, invoker.roundTripper, &request)
	if err != nil {
		return "", ClassifyFault(err)
	}
	if response == nil || response.Returnval == "" {
		return "", NewFault(FaultGuestOperations, "guest returned no path for the temporary file on %v", virtualMachine)
	}
	return response.Returnval, nil
}
