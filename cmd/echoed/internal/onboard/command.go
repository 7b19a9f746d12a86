package onboard

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal"
	"github.com/tgrady18/EchoedSDK/pkg/auth"
	"github.com/tgrady18/EchoedSDK/pkg/config"
)

func NewOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Store backend credentials in the config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return onboardCmd()
		},
	}
}

func onboardCmd() error {
	path := config.DefaultConfigPath()
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	creds, err := auth.ReadCredentials(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}

	cfg.APIKey = creds.APIKey
	cfg.CompanyID = creds.CompanyID
	if err := config.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("%s Credentials saved to %s\n", internal.Logo, path)
	return nil
}
