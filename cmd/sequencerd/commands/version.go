package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the semantic version of the sequencerd binary.
const Version = "0.1.0"

// VersionCmd prints the binary version.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}
