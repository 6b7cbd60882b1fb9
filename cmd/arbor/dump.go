package main

import (
	"os"

	"github.com/spf13/cobra"

	"arbor/internal/cfg"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <input>",
	Short: "Print a serialized module in textual form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := readModule(args[0])
		if err != nil {
			return err
		}
		return cfg.FprintModule(os.Stdout, m)
	},
}
