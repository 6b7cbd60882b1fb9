package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arbor/internal/version"
)

type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show arbor build fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFormat == "json" {
			payload := versionPayload{
				Tool:      "arbor",
				Version:   version.Version,
				GitCommit: version.GitCommit,
				BuildDate: version.BuildDate,
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		}
		fmt.Printf("arbor %s\n", version.Version)
		if version.GitCommit != "" {
			fmt.Printf("  commit %s\n", version.GitCommit)
		}
		if version.BuildDate != "" {
			fmt.Printf("  built  %s\n", version.BuildDate)
		}
		return nil
	},
}
