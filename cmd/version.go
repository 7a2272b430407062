package cmd

import (
	"fmt"

	pducycle "github.com/bikeshack/pducycle/internal"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use: "version",
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flag("rev").Value.String() == "true" {
			fmt.Println(pducycle.VersionCommit())
		} else {
			fmt.Println(pducycle.VersionTag())
		}
	},
}

func init() {
	versionCmd.Flags().Bool("rev", false, "show the version commit")
	rootCmd.AddCommand(versionCmd)
}
