package demo

import (
	"github.com/spf13/cobra"
)

func NewDemoCommand() *cobra.Command {
	var anchor string
	var debug bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an interactive console display surface",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return demoCmd(anchor, debug)
		},
	}

	cmd.Flags().StringVarP(&anchor, "anchor", "a", "", "Anchor to hit on startup")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
