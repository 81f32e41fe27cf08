package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradereplay/agent"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the available agents",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, info := range agent.List() {
			fmt.Fprintf(out, "%-10s %s\n", info.Name, info.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
