package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/doctor"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage, and provider setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := doctor.Run(cmd.Context())

		if doctorJSON {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		} else {
			for _, c := range report.Checks {
				fmt.Printf("[%-4s] %-20s %s\n", c.Status, c.Name, c.Message)
				if c.Fix != "" && c.Status != "pass" {
					fmt.Printf("       fix: %s\n", c.Fix)
				}
			}
			fmt.Printf("\n%d passed, %d warnings, %d failures\n",
				report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
		}

		if report.Status == "fail" {
			return fmt.Errorf("doctor found %d failing checks", report.Summary.Fail)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "emit the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}
