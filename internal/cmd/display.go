package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fclairamb/releasekit/internal/backup"
	"github.com/fclairamb/releasekit/internal/ledger"
	"github.com/fclairamb/releasekit/internal/release"
	"github.com/fclairamb/releasekit/internal/rollback"
)

const (
	// Time duration constants for relative time formatting.
	hoursPerDay  = 24
	daysPerWeek  = 7
	daysPerMonth = 30
)

// displayNextVersion displays the resolved next version and its notes.
//
//nolint:forbidigo // CLI user output function
func displayNextVersion(result *release.Result) {
	fmt.Printf("Current version: %s\n", result.PreviousVersion)
	fmt.Printf("Next version:    %s (tag %s)\n", result.Version, result.Tag)
	fmt.Printf("Commits:         %d\n", len(result.Commits))
	fmt.Println()
	fmt.Print(result.Notes)
}

// displayPreview displays the line-level changes of each file.
//
//nolint:forbidigo // CLI user output function
func displayPreview(result *release.Result) {
	fmt.Printf("Preview of %s -> %s\n", result.PreviousVersion, result.Version)

	for _, file := range result.Files {
		fmt.Printf("\n%s (%s, %d match(es))\n", file.Path, file.Handler, file.Matches)
		for _, match := range file.Preview {
			fmt.Printf("  line %d:\n", match.Line)
			fmt.Printf("    - %s\n", match.Before)
			fmt.Printf("    + %s\n", match.After)
		}
		if file.ValidationErr != nil {
			fmt.Printf("  WARNING: updated content does not validate: %v\n", file.ValidationErr)
		}
	}
}

// displayReleaseResult displays a completed release or a dry run.
//
//nolint:forbidigo // CLI user output function
func displayReleaseResult(result *release.Result) {
	if result.DryRun {
		fmt.Printf("Dry run - release %s would change:\n", result.Tag)
		for _, file := range result.Files {
			fmt.Println()
			fmt.Print(file.Diff)
		}
		fmt.Println()
		fmt.Print(result.Notes)
		fmt.Printf("\nDry run - no changes were made\n")
		return
	}

	fmt.Printf("\nRelease Results:\n")
	fmt.Printf("  Version: %s -> %s\n", result.PreviousVersion, result.Version)
	fmt.Printf("  Tag:     %s\n", result.Tag)
	fmt.Printf("  Commit:  %s\n", result.Commit)
	fmt.Printf("  Files:   %d\n", len(result.Files))
	if result.Pushed {
		fmt.Printf("  Pushed:  yes\n")
	} else {
		fmt.Printf("  Pushed:  no (run 'git push --follow-tags' when ready)\n")
	}
	if result.ReleaseURL != "" {
		fmt.Printf("  Release: %s\n", result.ReleaseURL)
	}
}

// displayReleaseFailure displays what a failed release undid and what is left to do.
//
//nolint:forbidigo // CLI user output function
func displayReleaseFailure(err *release.Error) {
	fmt.Printf("\nRelease failed at step %q: %v\n", err.Step, err.Err)

	if err.Rollback != nil {
		if len(err.Rollback.RolledBack) > 0 {
			fmt.Println("\nRolled back:")
			for _, op := range err.Rollback.RolledBack {
				fmt.Printf("  - %s\n", describe(op))
			}
		}
	}

	if followUps := err.FollowUps(); len(followUps) > 0 {
		fmt.Println("\nManual follow-up required:")
		for _, f := range followUps {
			fmt.Printf("  - %s\n", f)
		}
	}

	if err.BackupID != "" {
		fmt.Printf("\nOriginal files kept in backup %s (releasekit restore %s)\n", err.BackupID, err.BackupID)
	}
}

// describe formats an operation for display.
func describe(op ledger.Operation) string {
	return fmt.Sprintf("%s [%s]", op.Description, op.Type)
}

// displayRollbackReport displays the outcome of a rollback.
//
//nolint:forbidigo // CLI user output function
func displayRollbackReport(report *rollback.Report) {
	fmt.Printf("\nRollback of %s:\n", report.Version)

	if report.TagDeleted {
		fmt.Printf("  Tag %s deleted\n", report.Tag)
	}
	if report.ResetTo != "" {
		fmt.Printf("  Branch reset to %s\n", shortHash(report.ResetTo))
	} else if !report.ReleaseCommit {
		fmt.Printf("  Last commit is not the release commit; history left untouched\n")
	}
	switch {
	case report.RemoteTagDeleted:
		fmt.Printf("  Remote tag %s deleted\n", report.Tag)
	case report.RemoteSkipped:
		fmt.Printf("  Remote tag kept (not confirmed)\n")
	}

	for _, w := range report.Warnings {
		fmt.Printf("  WARNING: %s\n", w)
	}
}

// displayBackups displays the retained backups.
//
//nolint:forbidigo // CLI user output function
func displayBackups(sets []*backup.Set, dir string) {
	if len(sets) == 0 {
		fmt.Printf("No backups in %s\n", dir)
		return
	}

	fmt.Printf("Backups in %s:\n\n", dir)
	for _, set := range sets {
		fmt.Printf("%s  %s  %s\n", set.ID, formatTimeSince(set.CreatedAt), strings.Join(set.Paths(), ", "))
	}
	fmt.Printf("\nTotal: %d backup(s)\n", len(sets))
}

// displayRestored displays the files put back by a restore.
//
//nolint:forbidigo // CLI user output function
func displayRestored(set *backup.Set) {
	fmt.Printf("Restored %d file(s) from %s:\n", len(set.Entries), set.ID)
	for _, path := range set.Paths() {
		fmt.Printf("  %s\n", path)
	}
}

func shortHash(hash string) string {
	const n = 7
	if len(hash) > n {
		return hash[:n]
	}
	return hash
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < hoursPerDay*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < daysPerWeek*hoursPerDay*time.Hour:
		days := int(duration.Hours() / hoursPerDay)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case duration < daysPerMonth*hoursPerDay*time.Hour:
		weeks := int(duration.Hours() / hoursPerDay / daysPerWeek)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(duration.Hours() / hoursPerDay / daysPerMonth)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}
