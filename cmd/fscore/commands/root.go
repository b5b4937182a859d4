package commands

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"fscore/internal/app"
)

var (
	configPath string
	home       string
	passphrase string
	relayURL   string

	wire      *app.Wire
	logCloser io.Closer
)

var errNoPassphrase = errors.New("passphrase required (-p)")

func Execute() error {
	root := &cobra.Command{
		Use:          "fscore",
		Short:        "Forward secret messaging CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := &app.Config{}
			if configPath != "" {
				var err error
				if cfg, err = app.LoadFile(configPath); err != nil {
					return err
				}
			}
			if home != "" {
				cfg.Home = home
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if err := cfg.FixupAndValidate(); err != nil {
				return err
			}
			closer, err := cfg.InitLogging()
			if err != nil {
				return err
			}
			logCloser = closer
			wire, err = app.NewWire(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")
	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.fscore)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		addContactCmd(),
		sendCmd(),
		recvCmd(),
		sessionsCmd(),
		resetCmd(),
		migrateCmd(),
	)
	return root.Execute()
}

// withApp unlocks the identity, runs fn and closes the app again.
func withApp(needRelay bool, fn func(a *app.App) error) error {
	if passphrase == "" {
		return errNoPassphrase
	}
	a, err := wire.Unlock(passphrase)
	if err != nil {
		return err
	}
	defer a.Close()
	if needRelay {
		if err := a.RequireRelay(); err != nil {
			return err
		}
	}
	return fn(a)
}
