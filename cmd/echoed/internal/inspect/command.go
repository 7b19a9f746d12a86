package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal"
	"github.com/tgrady18/EchoedSDK/pkg/api"
	"github.com/tgrady18/EchoedSDK/pkg/identity"
	"github.com/tgrady18/EchoedSDK/pkg/tags"
)

func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect backend configuration and local state",
	}

	cmd.AddCommand(
		newAnchorsCommand(),
		newRuleSetsCommand(),
		newTagDefsCommand(),
		newTagsCommand(),
	)

	return cmd
}

func newAnchorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "anchors",
		Short: "List the backend's known anchor ids",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			anchors, err := client.FetchAnchors(commandContext())
			if err != nil {
				return fmt.Errorf("fetching anchors: %w", err)
			}
			for _, id := range anchors {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func newRuleSetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rulesets",
		Short: "Dump the backend's targeting rule sets as JSON",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			ruleSets, err := client.FetchRuleSets(commandContext())
			if err != nil {
				return fmt.Errorf("fetching rule sets: %w", err)
			}
			return dumpJSON(ruleSets)
		},
	}
}

func newTagDefsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tagdefs",
		Short: "Dump the backend's observed tag definitions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, err := backendClient()
			if err != nil {
				return err
			}
			defs, err := client.FetchTagDefinitions(commandContext())
			if err != nil {
				return fmt.Errorf("fetching tag definitions: %w", err)
			}
			return dumpJSON(defs)
		},
	}
}

func newTagsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "Dump the local tag store",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			store, err := tags.Open(cfg.DataDir,
				time.Duration(cfg.SessionTimeoutSeconds)*time.Second)
			if err != nil {
				return fmt.Errorf("opening tag store: %w", err)
			}
			defer store.Close()

			for _, t := range store.All() {
				fmt.Printf("%-28s %-10s %-9s %v\n", t.Key, t.Value.Type(), t.Category, t.Value.Raw())
			}
			return nil
		},
	}
}

func backendClient() (*api.Client, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Configured() {
		return nil, fmt.Errorf("backend not configured: run `echoed onboard` or set ECHOED_API_KEY / ECHOED_COMPANY_ID")
	}
	deviceID, err := identity.DeviceID(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("device identity: %w", err)
	}
	return api.NewClient(cfg.BaseURL, cfg.APIKey, cfg.CompanyID, deviceID), nil
}

func commandContext() context.Context {
	// inspect commands are short-lived; rely on the client's own timeout
	return context.Background()
}

func dumpJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
