package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
	"github.com/open-cyber-range/vmware-guest-tempfile/library"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "dev"

type runner func(ctx context.Context, configuration library.Configuration, out io.Writer) int

type exitError struct {
	code int
}

func (exit exitError) Error() string {
	return fmt.Sprintf("exit status %d", exit.code)
}

// Not found and not powered on are recovered locally and exit with 0.
func exitCode(err error) int {
	if err != nil {
		return int(library.KindOf(err).Code())
	}
	return 0
}

func RealMain(ctx context.Context, configuration library.Configuration, out io.Writer) int {
	logger := log.WithFields(log.Fields{
		"run": uuid.New().String(),
		"vm":  configuration.VmName,
	})

	client, err := configuration.CreateClient(ctx)
	if err != nil {
		logger.Errorf("Failed to connect to %v: %v", configuration.URL, err)
		fmt.Fprintln(out, err)
		return 1
	}
	defer library.CloseClient(client)

	session, err := library.NewSession(ctx, client, configuration)
	if err != nil {
		logger.Errorf("Failed to prepare session: %v", err)
		fmt.Fprintln(out, err)
		return 1
	}
	logger.Debugf("Using %v", session)

	outcome, err := NewOrchestrator(session, configuration, logger).Run(ctx)
	if outcome.State == StateAborted {
		logger = logger.WithField("fault", strcase.ToSnake(outcome.Reason.String()))
		if err != nil {
			logger.Errorf("Run aborted: %v", err)
		} else {
			logger.Info("Run aborted")
		}
	}
	fmt.Fprintln(out, outcome.Message)
	return exitCode(err)
}

type stringOption struct {
	name        string
	description string
	target      func(*library.Configuration) *string
}

var stringOptions = []stringOption{
	{"url", "url of the web service", func(c *library.Configuration) *string { return &c.URL }},
	{"username", "username for the authentication", func(c *library.Configuration) *string { return &c.User }},
	{"password", "password for the authentication", func(c *library.Configuration) *string { return &c.Password }},
	{"vmname", "name of the virtual machine", func(c *library.Configuration) *string { return &c.VmName }},
	{"guestusername", "username in the guest", func(c *library.Configuration) *string { return &c.GuestUser }},
	{"guestpassword", "password in the guest", func(c *library.Configuration) *string { return &c.GuestPassword }},
	{"prefix", "prefix to be added to the file name", func(c *library.Configuration) *string { return &c.Prefix }},
	{"suffix", "suffix to be added to the file name", func(c *library.Configuration) *string { return &c.Suffix }},
	{"directorypath", "path to the directory inside the guest", func(c *library.Configuration) *string { return &c.DirectoryPath }},
}

// buildConfiguration layers explicitly set flags over the optional YAML file.
func buildConfiguration(flags *pflag.FlagSet, configurationPath string, fromFlags library.Configuration) (configuration library.Configuration, err error) {
	if configurationPath != "" {
		if configuration, err = library.GetConfiguration(configurationPath); err != nil {
			return configuration, fmt.Errorf("failed to read configuration %v: %v", configurationPath, err)
		}
	}

	for _, option := range stringOptions {
		if flags.Changed(option.name) {
			*option.target(&configuration) = *option.target(&fromFlags)
		}
	}
	if flags.Changed("insecure") {
		configuration.Insecure = fromFlags.Insecure
	}
	if flags.Changed("readytimeout") {
		configuration.Variables.ReadyTimeoutSec = fromFlags.Variables.ReadyTimeoutSec
	}

	configuration.SetDefaultConfigurationValues()
	err = configuration.Validate()
	return
}

func newRootCommand(run runner) *cobra.Command {
	var configurationPath string
	var logLevel string
	var fromFlags library.Configuration

	command := &cobra.Command{
		Use:   "tempfiler",
		Short: "Create a temporary file inside a virtual machine",
		Long: `tempfiler finds a virtual machine by name, checks that it is powered on,
waits for its guest operations to become ready and creates a uniquely named
temporary file inside the guest. The path of the created file is printed.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)

			configuration, err := buildConfiguration(cmd.Flags(), configurationPath, fromFlags)
			if err != nil {
				return err
			}

			if code := run(cmd.Context(), configuration, cmd.OutOrStdout()); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}

	flags := command.Flags()
	for _, option := range stringOptions {
		flags.StringVar(option.target(&fromFlags), option.name, "", option.description)
	}
	flags.BoolVar(&fromFlags.Insecure, "insecure", false, "skip verification of the server certificate")
	flags.IntVar(&fromFlags.Variables.ReadyTimeoutSec, "readytimeout", 0, "seconds to wait for guest operations to become ready, 0 waits forever")
	flags.StringVar(&configurationPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&logLevel, "log-level", log.InfoLevel.String(), "log level")

	return command
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(RealMain).ExecuteContext(ctx)
	stop()

	if err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
