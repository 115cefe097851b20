package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/forestry/woodland-review/review"
)

var (
	importAll      bool
	importReimport bool
	importUser     string
)

var importCmd = &cobra.Command{
	Use:   "import [application-id...]",
	Short: "Import proposed felling and restocking into the confirmed copy",
	Long: `Import copies each application's submitted compartments and proposed
felling and restocking into the confirmed working copy, exactly as the
woodland officer's "import" action does, and resets the felling and
restocking section of the review.

Applications that already have confirmed details are skipped unless
--reimport is given.

Examples:
  # Import two applications
  ./server import 6f1c... 9a2e... --user 3b0c...

  # Re-import everything
  ./server import --all --reimport --user 3b0c...`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importAll, "all", false, "Import every application in the database")
	importCmd.Flags().BoolVar(&importReimport, "reimport", false, "Replace existing confirmed details")
	importCmd.Flags().StringVar(&importUser, "user", "", "Id of the user performing the import (required)")
	importCmd.MarkFlagRequired("user")
}

func runImport(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(importUser)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	if importAll == (len(args) > 0) {
		return errors.New("give application ids or --all, not both")
	}

	svc, err := newServices()
	if err != nil {
		return err
	}
	defer svc.Close()
	ctx := cmd.Context()

	var ids []uuid.UUID
	if importAll {
		if ids, err = svc.store.ListApplicationIDs(ctx); err != nil {
			return err
		}
	} else {
		for _, a := range args {
			id, err := uuid.Parse(a)
			if err != nil {
				return fmt.Errorf("invalid application id %q: %w", a, err)
			}
			ids = append(ids, id)
		}
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Importing applications..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("applications"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	var imported, skipped, failed int
	for _, id := range ids {
		err := svc.engine.ImportProposedToConfirmed(ctx, id, userID, review.ImportOptions{Reimport: importReimport})
		switch {
		case err == nil:
			imported++
		case errors.Is(err, review.ErrConfirmedDetailsExist):
			skipped++
		default:
			failed++
			svc.log.Error("import failed", "application_id", id, "error", err)
		}
		bar.Add(1)
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d, failed %d\n", imported, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d import(s) failed", failed)
	}
	return ctx.Err()
}
