package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/untoldecay/obsbridge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a default config to .obsbridge/config.yaml in the current
directory. Refuses to overwrite an existing file.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fail(err)
		}
		path := filepath.Join(cwd, ".obsbridge", "config.yaml")
		if flagConfig != "" {
			path = flagConfig
		}
		if err := config.WriteDefault(path); err != nil {
			fail(err)
		}
		fmt.Println("wrote", path)
		fmt.Println("edit it to add your vaults and reminders lists, then run: obr sync --dry-run")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
