package reconcile

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/reconcile/pkg/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the run journal",
	Long: `Inspect the run journal.

The journal records which documents have been reconciled, so interrupted
runs can resume without re-ingesting. Entries are plain JSON files and safe
to delete.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal entries",
	RunE:  runJournalList,
}

var journalCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove journal entries older than a cutoff",
	RunE:  runJournalClean,
}

var (
	journalDir      string
	journalFailed   bool
	journalMaxAge   time.Duration
	journalAttempts int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalCleanCmd)

	journalCmd.PersistentFlags().StringVar(&journalDir, "journal-dir", "", "Directory for the run journal (default is the OS temp dir)")
	journalListCmd.Flags().BoolVar(&journalFailed, "failed", false, "Only list documents whose last attempt failed")
	journalListCmd.Flags().IntVar(&journalAttempts, "max-attempts", 0, "With --failed, hide documents tried at least this many times")
	journalCleanCmd.Flags().DurationVar(&journalMaxAge, "older-than", 7*24*time.Hour, "Remove entries not updated within this duration")
}

func runJournalList(cmd *cobra.Command, args []string) error {
	jrnl, err := journal.New(journalDir)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}

	var entries []*journal.Entry
	if journalFailed {
		entries, err = jrnl.FindFailed(cmd.Context(), journalAttempts)
	} else {
		entries, err = jrnl.List(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("Journal is empty")
		return nil
	}

	for _, e := range entries {
		switch e.Status {
		case journal.StatusCompleted:
			fmt.Printf("%-12s %s group=%s facts=%d triplets=%d invalidated=%d\n",
				e.Status, e.DocumentID, e.GroupID, e.Facts, e.Triplets, e.Invalidated)
		default:
			fmt.Printf("%-12s %s group=%s attempts=%d error=%s\n",
				e.Status, e.DocumentID, e.GroupID, e.AttemptCount, e.LastError)
		}
	}
	return nil
}

func runJournalClean(cmd *cobra.Command, args []string) error {
	jrnl, err := journal.New(journalDir)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}

	removed, err := jrnl.CleanOld(cmd.Context(), journalMaxAge)
	if err != nil {
		return fmt.Errorf("failed to clean journal: %w", err)
	}

	fmt.Printf("Removed %d journal entries\n", removed)
	return nil
}
