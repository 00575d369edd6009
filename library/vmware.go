package library

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"
)

// Session is the explicit control-plane context handed to every component of
// a run.
type Session struct {
	Client                 *vim25.Client
	RootFolder             types.ManagedObjectReference
	GuestOperationsManager types.ManagedObjectReference
}

func NewSession(ctx context.Context, client *govmomi.Client, configuration Configuration) (Session, error) {
	userSession, userSessionError := client.SessionManager.UserSession(ctx)
	if userSessionError != nil {
		return Session{}, ClassifyFault(userSessionError)
	}

	if userSession == nil {
		hostURL, hostError := configuration.CreateLoginURL()
		if hostError != nil {
			return Session{}, hostError
		}
		if loginError := client.Login(ctx, hostURL.User); loginError != nil {
			return Session{}, ClassifyFault(loginError)
		}
	} else {
		log.Debugf("Reusing vSphere session of %v", userSession.UserName)
	}

	serviceContent := client.ServiceContent
	if serviceContent.GuestOperationsManager == nil {
		return Session{}, NewFault(FaultGuestOperations, "guest operations are not supported by %v", client.URL().Host)
	}

	return Session{
		Client:                 client.Client,
		RootFolder:             serviceContent.RootFolder,
		GuestOperationsManager: *serviceContent.GuestOperationsManager,
	}, nil
}

func CloseClient(client *govmomi.Client) {
	if err := client.Logout(context.Background()); err != nil {
		log.Warnf("Failed to log out of %v: %v", client.URL().Host, err)
	}
}

func (session Session) String() string {
	return fmt.Sprintf("Session{RootFolder: %v, GuestOperationsManager: %v}", session.RootFolder, session.GuestOperationsManager)
}
