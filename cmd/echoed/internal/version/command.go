package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the echoed version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("%s echoed %s\n", internal.Logo, internal.FormatVersion())
		},
	}
}
