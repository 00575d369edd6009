package library

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v2"
)

type ConfigurationVariables struct {
	ReadyTimeoutSec int `yaml:"ready_timeout_sec,omitempty"`
	KeepAliveMin    int `yaml:"keep_alive_min,omitempty"`
}

type Configuration struct {
	URL           string                 `yaml:"url,omitempty"`
	User          string                 `yaml:",omitempty"`
	Password      string                 `yaml:",omitempty"`
	Insecure      bool                   `yaml:",omitempty"`
	VmName        string                 `yaml:"vm_name,omitempty"`
	GuestUser     string                 `yaml:"guest_user,omitempty"`
	GuestPassword string                 `yaml:"guest_password,omitempty"`
	Prefix        string                 `yaml:",omitempty"`
	Suffix        string                 `yaml:",omitempty"`
	DirectoryPath string                 `yaml:"directory_path,omitempty"`
	Variables     ConfigurationVariables `yaml:",inline"`
}

func GetConfiguration(configurationPath string) (configuration Configuration, err error) {
	yamlFile, err := os.ReadFile(configurationPath)
	if err != nil {
		return
	}

	err = yaml.Unmarshal(yamlFile, &configuration)
	return
}

func (configuration *Configuration) Validate() error {
	if configuration.URL == "" {
		return status.Error(codes.InvalidArgument, "Vsphere url not provided")
	}
	if configuration.User == "" {
		return status.Error(codes.InvalidArgument, "Vsphere user name not provided")
	}
	if configuration.Password == "" {
		return status.Error(codes.InvalidArgument, "Vsphere password not provided")
	}
	if configuration.VmName == "" {
		return status.Error(codes.InvalidArgument, "Virtual machine name not provided")
	}
	if configuration.GuestUser == "" {
		return status.Error(codes.InvalidArgument, "Guest user name not provided")
	}
	if configuration.GuestPassword == "" {
		return status.Error(codes.InvalidArgument, "Guest password not provided")
	}
	if configuration.Variables.ReadyTimeoutSec < 0 {
		return status.Error(codes.InvalidArgument, "Guest operations ready timeout can not be negative")
	}
	return nil
}

func (configuration *Configuration) SetDefaultConfigurationValues() {
	if configuration.Variables.ReadyTimeoutSec == 0 {
		configuration.Variables.ReadyTimeoutSec = DefaultConfigurationVariables.ReadyTimeoutSec
	}
	if configuration.Variables.KeepAliveMin == 0 {
		configuration.Variables.KeepAliveMin = DefaultConfigurationVariables.KeepAliveMin
	}
}

// ReadyTimeout is zero when the guest operations wait has no deadline.
func (configuration *Configuration) ReadyTimeout() time.Duration {
	return time.Duration(configuration.Variables.ReadyTimeoutSec) * time.Second
}

func (configuration *Configuration) CreateLoginURL() (*url.URL, error) {
	hostURL, err := soap.ParseURL(configuration.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %s", err)
	}
	if hostURL == nil {
		return nil, fmt.Errorf("failed to parse url: %q is empty", configuration.URL)
	}
	hostURL.User = url.UserPassword(configuration.User, configuration.Password)
	return hostURL, nil
}

func isNotAuthenticated(err error) bool {
	if soap.IsSoapFault(err) {
		switch soap.ToSoapFault(err).VimFault().(type) {
		case types.NotAuthenticated, *types.NotAuthenticated:
			return true
		}
	}
	return false
}

func (configuration *Configuration) CreateClient(ctx context.Context) (*govmomi.Client, error) {
	hostURL, err := configuration.CreateLoginURL()
	if err != nil {
		return nil, err
	}

	soapClient := soap.NewClient(hostURL, configuration.Insecure)
	vimClient, vimClientError := vim25.NewClient(ctx, soapClient)
	if vimClientError != nil {
		return nil, ClassifyFault(fmt.Errorf("failed to create new client: %w", vimClientError))
	}

	sessionManager := session.NewManager(vimClient)
	client := &govmomi.Client{
		Client:         vimClient,
		SessionManager: sessionManager,
	}

	clientError := client.Login(ctx, hostURL.User)
	if clientError != nil {
		return nil, ClassifyFault(fmt.Errorf("failed to setup the client: %w", clientError))
	}

	keepAlive := time.Duration(configuration.Variables.KeepAliveMin) * time.Minute
	if keepAlive <= 0 {
		keepAlive = time.Duration(DefaultConfigurationVariables.KeepAliveMin) * time.Minute
	}
	vimClient.RoundTripper = session.KeepAliveHandler(vimClient.RoundTripper, keepAlive,
		func(roundTripper soap.RoundTripper) error {
			_, err := methods.GetCurrentTime(ctx, roundTripper)
			if err == nil {
				return nil
			}

			log.Warnf("session keepalive error: %s", err)

			if isNotAuthenticated(err) {
				if err = client.Login(ctx, hostURL.User); err != nil {
					log.Errorf("session keepalive failed to re-authenticate: %s", err)
				} else {
					log.Info("session keepalive re-authenticated")
				}
			}

			return nil
		},
	)

	return client, nil
}
