package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forestry/woodland-review/factory"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file-or-dir>",
	Short: "Load plan fixtures into the database",
	Long: `Seed loads one plan fixture, or every .yaml/.yml/.json fixture in a
directory, and stores the application, its users and the proposed plan.

Examples:
  ./server seed ./testdata/plans/oak-wood.yaml
  ./server seed ./testdata/plans`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	plans, err := loadPlans(args[0])
	if err != nil {
		return err
	}

	svc, err := newServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	for _, plan := range plans {
		if err := plan.Seed(ctx, svc.store); err != nil {
			return err
		}
		svc.log.Info("seeded application",
			"application_id", plan.Application.ID,
			"reference", plan.Application.Reference,
			"compartments", len(plan.Compartments),
			"proposed_felling", len(plan.Proposed))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d application(s)\n", len(plans))
	return nil
}

func loadPlans(path string) ([]*factory.Plan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return factory.LoadPlans(path)
	}
	plan, err := factory.LoadPlan(path)
	if err != nil {
		return nil, err
	}
	return []*factory.Plan{plan}, nil
}
