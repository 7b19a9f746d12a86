// Echoed - contextual feedback collection SDK
//
// The echoed command hosts the SDK's development surfaces: an interactive
// demo, a websocket display-surface gateway, and inspection of the backend's
// anchors, rule sets and tag definitions.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal"
	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal/demo"
	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal/gateway"
	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal/inspect"
	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal/onboard"
	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal/version"
)

func NewEchoedCommand() *cobra.Command {
	short := fmt.Sprintf("%s echoed - Feedback Collection SDK v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "echoed",
		Short:   short,
		Example: "echoed demo --anchor post_purchase",
	}

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		demo.NewDemoCommand(),
		gateway.NewGatewayCommand(),
		inspect.NewInspectCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewEchoedCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
