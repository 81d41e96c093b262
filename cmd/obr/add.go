package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/identity"
	"github.com/untoldecay/obsbridge/internal/safeio"
	"github.com/untoldecay/obsbridge/internal/taskline"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/vault"
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Append a task line to the inbox note",
	Long: `Append a new task line, with a fresh block anchor, to the inbox
note of the chosen vault. The next sync picks it up like any other markdown
task.

Examples:
  obr add "Call the dentist"
  obr add "File taxes" --due "next friday" --priority high
  obr add "Water plants" --note Garden.md --vault home
`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		due, _ := cmd.Flags().GetString("due")
		prio, _ := cmd.Flags().GetString("priority")
		vaultName, _ := cmd.Flags().GetString("vault")
		note, _ := cmd.Flags().GetString("note")
		tags, _ := cmd.Flags().GetStringSlice("tag")

		r, err := newRuntime()
		if err != nil {
			fail(err)
		}

		title := strings.TrimSpace(strings.Join(args, " "))
		if title == "" {
			fail(fmt.Errorf("empty title"))
		}

		var dueDate string
		if due != "" {
			dueDate, err = dates.ParseHuman(due, time.Now())
			if err != nil {
				fail(fmt.Errorf("due date: %w", err))
			}
		}

		priority := types.PriorityNone
		switch prio {
		case "", "none":
		case "low", "medium", "high", "highest":
			priority = types.Priority(prio)
		default:
			fail(fmt.Errorf("unknown priority %q (low, medium, high, highest)", prio))
		}

		v, ok := r.cfg.VaultByName(vaultName)
		if !ok {
			fail(fmt.Errorf("unknown vault %q", vaultName))
		}
		if note == "" {
			note = strings.ReplaceAll(r.cfg.InboxNote, "{date}", dates.Today())
		}
		path := filepath.Join(v.Path, note)

		lock, err := safeio.AcquireLock(cmd.Context(), r.lockPath(), r.cfg.LockTimeout)
		if err != nil {
			fail(err)
		}
		defer lock.Unlock()

		var existing map[string]bool
		if lines, err := vault.ReadLines(path); err == nil {
			existing = identity.CollectAnchors(lines)
		}
		anchor := identity.NewAnchor(existing)

		line := taskline.Format(taskline.FormatOptions{
			Status:   types.StatusTodo,
			Title:    title,
			Due:      dueDate,
			Priority: priority,
			Tags:     tags,
			Anchor:   anchor,
		})
		lineNo, err := vault.AppendLine(path, line)
		if err != nil {
			fail(err)
		}
		fmt.Printf("added to %s:%d\n", path, lineNo)
	},
}

func init() {
	addCmd.Flags().String("due", "", "due date (natural language or YYYY-MM-DD)")
	addCmd.Flags().String("priority", "", "priority (low, medium, high, highest)")
	addCmd.Flags().String("vault", "", "target vault (default: first configured)")
	addCmd.Flags().String("note", "", "target note relative to the vault root (default: inbox note)")
	addCmd.Flags().StringSlice("tag", nil, "tag(s) to append")
	rootCmd.AddCommand(addCmd)
}
