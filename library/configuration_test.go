package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func validConfiguration() Configuration {
	return Configuration{
		URL:           "https://vcenter.example.com/sdk",
		User:          "administrator@vsphere.local",
		Password:      "secret",
		VmName:        "web01",
		GuestUser:     "root",
		GuestPassword: "hunter2",
	}
}

func TestGetConfiguration(t *testing.T) {
	t.Parallel()
	configurationPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(configurationPath, []byte(`
url: vcenter.example.com
user: administrator@vsphere.local
password: secret
insecure: true
vm_name: web01
guest_user: root
guest_password: hunter2
prefix: tmp_
suffix: .dat
directory_path: /var/tmp
ready_timeout_sec: 30
`), 0o600))

	configuration, err := GetConfiguration(configurationPath)
	require.NoError(t, err)
	assert.Equal(t, Configuration{
		URL:           "vcenter.example.com",
		User:          "administrator@vsphere.local",
		Password:      "secret",
		Insecure:      true,
		VmName:        "web01",
		GuestUser:     "root",
		GuestPassword: "hunter2",
		Prefix:        "tmp_",
		Suffix:        ".dat",
		DirectoryPath: "/var/tmp",
		Variables:     ConfigurationVariables{ReadyTimeoutSec: 30},
	}, configuration)
	assert.NoError(t, configuration.Validate())
	assert.Equal(t, 30*time.Second, configuration.ReadyTimeout())
}

func TestGetConfigurationMissingFile(t *testing.T) {
	t.Parallel()
	_, err := GetConfiguration(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestValidateRequiredFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		clear func(*Configuration)
	}{
		{"url", func(c *Configuration) { c.URL = "" }},
		{"user", func(c *Configuration) { c.User = "" }},
		{"password", func(c *Configuration) { c.Password = "" }},
		{"vm name", func(c *Configuration) { c.VmName = "" }},
		{"guest user", func(c *Configuration) { c.GuestUser = "" }},
		{"guest password", func(c *Configuration) { c.GuestPassword = "" }},
		{"negative timeout", func(c *Configuration) { c.Variables.ReadyTimeoutSec = -1 }},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			configuration := validConfiguration()
			test.clear(&configuration)

			err := configuration.Validate()
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestEmptyPrefixSuffixAndDirectoryAreValid(t *testing.T) {
	t.Parallel()
	configuration := validConfiguration()
	assert.Empty(t, configuration.Prefix)
	assert.Empty(t, configuration.Suffix)
	assert.Empty(t, configuration.DirectoryPath)
	assert.NoError(t, configuration.Validate())
}

func TestSetDefaultConfigurationValues(t *testing.T) {
	t.Parallel()
	configuration := validConfiguration()
	configuration.SetDefaultConfigurationValues()

	assert.Equal(t, DefaultConfigurationVariables.KeepAliveMin, configuration.Variables.KeepAliveMin)
	assert.Equal(t, time.Duration(0), configuration.ReadyTimeout())

	configuration.Variables.KeepAliveMin = 3
	configuration.SetDefaultConfigurationValues()
	assert.Equal(t, 3, configuration.Variables.KeepAliveMin)
}

func TestCreateLoginURL(t *testing.T) {
	t.Parallel()
	configuration := validConfiguration()
	configuration.URL = "vcenter.example.com"

	loginURL, err := configuration.CreateLoginURL()
	require.NoError(t, err)
	assert.Equal(t, "https", loginURL.Scheme)
	assert.Equal(t, "vcenter.example.com", loginURL.Host)
	assert.Equal(t, "/sdk", loginURL.Path)
	assert.Equal(t, "administrator@vsphere.local", loginURL.User.Username())
	password, _ := loginURL.User.Password()
	assert.Equal(t, "secret", password)

	configuration.URL = ""
	_, err = configuration.CreateLoginURL()
	assert.Error(t, err)
}

func TestCreateClientAndSession(t *testing.T) {
	model := simulator.VPX()
	defer model.Remove()
	require.NoError(t, model.Create())

	server := model.Service.NewServer()
	defer server.Close()

	configuration := validConfiguration()
	configuration.URL = server.URL.String()
	configuration.User = "user"
	configuration.Password = "pass"
	configuration.Insecure = true
	configuration.SetDefaultConfigurationValues()

	ctx := context.Background()
	client, err := configuration.CreateClient(ctx)
	require.NoError(t, err)
	defer CloseClient(client)

	session, err := NewSession(ctx, client, configuration)
	require.NoError(t, err)
	assert.Equal(t, client.ServiceContent.RootFolder, session.RootFolder)
	assert.Equal(t, "GuestOperationsManager", session.GuestOperationsManager.Type)
	assert.Same(t, client.Client, session.Client)
}

func TestCreateClientUnreachable(t *testing.T) {
	t.Parallel()
	configuration := validConfiguration()
	configuration.URL = "https://127.0.0.1:1/sdk"
	configuration.Insecure = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := configuration.CreateClient(ctx)
	require.Error(t, err)
	assert.Equal(t, FaultCommunication, KindOf(err))
}
