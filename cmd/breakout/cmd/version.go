package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("breakout version %s\n", version)
		fmt.Println("An automated range-breakout execution engine for futures")
		fmt.Println("https://github.com/rustyeddy/breakout")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
