package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/state"
	"github.com/taskweave/taskweave/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show roster and recent coordination history",
	Long: `Display the configured agent roster and the recent archived
coordination history for this project.

Shows:
  - Configured agents, capacities, and specializations
  - Recent completed and rejected handoffs
  - Recent resolved conflicts
  - Unread persistent notifications`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	displayRoster(cfg)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("\nNo coordination history. Run 'taskweave run' to start the engine.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err := displayHandoffs(db); err != nil {
		return err
	}
	if err := displayConflicts(db); err != nil {
		return err
	}
	return displayNotifications(db)
}

func displayRoster(cfg *config.Config) {
	if len(cfg.Agents) == 0 {
		fmt.Println("Agents: none configured")
		return
	}

	fmt.Printf("Agents: %d configured\n", len(cfg.Agents))
	for _, a := range cfg.Agents {
		specs := "none"
		if len(a.Specializations) > 0 {
			specs = fmt.Sprintf("%v", a.Specializations)
		}
		fmt.Printf("  %s: capacity %d, specializations %s\n", a.Role, a.Capacity, specs)
	}
}

func displayHandoffs(db *state.DB) error {
	handoffs, err := db.ListHandoffs("")
	if err != nil {
		return fmt.Errorf("list handoffs: %w", err)
	}
	if len(handoffs) == 0 {
		return nil
	}

	fmt.Println("\nRecent Handoffs:")
	for i, h := range handoffs {
		if i >= 5 {
			break
		}
		marker := color.GreenString("✓")
		if h.Status == models.HandoffRejected {
			marker = color.RedString("✗")
		}
		fmt.Printf("  %s %s → %s: %q (%s, %s ago)\n",
			marker, h.FromAgent, h.ToAgent, h.Reason, h.Status, formatDuration(time.Since(h.CreatedAt)))
	}
	return nil
}

func displayConflicts(db *state.DB) error {
	conflicts, err := db.ListConflicts(models.ConflictResolved)
	if err != nil {
		return fmt.Errorf("list conflicts: %w", err)
	}
	if len(conflicts) == 0 {
		return nil
	}

	fmt.Println("\nResolved Conflicts:")
	for i, c := range conflicts {
		if i >= 5 {
			break
		}
		fmt.Printf("  %s [%s] %s: resolved by %s (%s ago)\n",
			color.GreenString("✓"), c.Severity, c.Type, c.ResolvedBy, formatDuration(time.Since(c.ResolvedAt)))
	}
	return nil
}

func displayNotifications(db *state.DB) error {
	notifs, err := db.ListArchivedNotifications("")
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}

	var unread []*models.Notification
	for _, n := range notifs {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	if len(unread) == 0 {
		return nil
	}

	fmt.Println("\nUnread Notifications:")
	for i, n := range unread {
		if i >= 5 {
			break
		}
		fmt.Printf("  %s %s: %s (%s ago)\n",
			color.YellowString("•"), n.Recipient, n.Title, formatDuration(time.Since(n.CreatedAt)))
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
