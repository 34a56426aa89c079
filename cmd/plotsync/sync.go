package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/types"
	"github.com/plotsync/plotsync/internal/ui"
)

var previewCmd = &cobra.Command{
	Use:     "preview <project>",
	GroupID: GroupSync,
	Short:   "Show what syncing with the source would add or change",
	Long: `Re-read the project's source and compare it with the stored project.

Nothing is written. Each proposed addition and change has an id that can be
passed to 'plotsync apply'. Locked and archived items never show up, and
nothing is ever proposed for deletion.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := mustProject(args[0])
		preview, err := newEngine().Preview(rootCtx, p.ID)
		if err != nil {
			fatalSync(err)
		}
		if jsonOutput {
			outputJSON(preview)
			return
		}
		asMarkdown, _ := cmd.Flags().GetBool("markdown")
		noPager, _ := cmd.Flags().GetBool("no-pager")
		out := ui.RenderPreview(preview, p.Title)
		if asMarkdown {
			out = ui.RenderMarkdown(ui.PreviewMarkdown(preview, p.Title))
		}
		if err := ui.ToPager(out, ui.PagerOptions{NoPager: noPager}); err != nil {
			WarnError("pager: %v", err)
		}
	},
}

var applyCmd = &cobra.Command{
	Use:     "apply <project>",
	GroupID: GroupSync,
	Short:   "Apply selected additions and changes from the sync preview",
	Long: `Apply selected items of the sync preview.

The preview is recomputed from the source first. Ids that are no longer
proposed, or that name locked items, are skipped with a warning.

Examples:
  plotsync apply novel --change chg:scene:1f3a...:title
  plotsync apply novel --add add:scene:s2 --add add:beat:b7
  plotsync apply novel --interactive
  plotsync apply novel --all`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		changeIDs, _ := cmd.Flags().GetStringSlice("change")
		addIDs, _ := cmd.Flags().GetStringSlice("add")
		all, _ := cmd.Flags().GetBool("all")
		interactive, _ := cmd.Flags().GetBool("interactive")

		if !all && !interactive && len(changeIDs) == 0 && len(addIDs) == 0 {
			FatalErrorWithHint("nothing selected", "Pass --change/--add ids from 'plotsync preview', or --all, or --interactive")
		}
		if interactive && !ui.IsTerminal() {
			FatalError("--interactive needs a terminal")
		}

		p := mustProject(args[0])
		engine := newEngine()

		if all || interactive {
			preview, err := engine.Preview(rootCtx, p.ID)
			if err != nil {
				fatalSync(err)
			}
			if preview.IsEmpty() {
				if jsonOutput {
					outputJSON(&types.ReimportSummary{})
				} else {
					fmt.Println("Nothing to sync: the project matches its source.")
				}
				return
			}
			var picked []string
			if all {
				picked = allIDs(preview)
			} else {
				picked = pickInteractively(preview, p.Title)
			}
			adds, changes := splitIDs(picked)
			addIDs = append(addIDs, adds...)
			changeIDs = append(changeIDs, changes...)
		}

		sum, err := engine.Apply(rootCtx, p.ID, changeIDs, addIDs)
		reportSummary(sum, err)
	},
}

var reimportCmd = &cobra.Command{
	Use:     "reimport <project>",
	GroupID: GroupSync,
	Short:   "Apply every proposed addition and change from the source",
	Long: `Re-read the source and apply the whole sync preview.

Locked items, archived items and written prose are left alone, and nothing
is deleted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := mustProject(args[0])
		sum, err := newEngine().Reimport(rootCtx, p.ID)
		reportSummary(sum, err)
	},
}

// reportSummary prints what was done, then fails if the run stopped early.
func reportSummary(sum *types.ReimportSummary, err error) {
	if sum != nil {
		if jsonOutput && err == nil {
			outputJSON(sum)
			return
		}
		if !jsonOutput {
			fmt.Print(ui.RenderSummary(sum))
		}
	}
	if err != nil {
		fatalSync(err)
	}
}

func allIDs(p *types.SyncPreview) []string {
	ids := make([]string, 0, len(p.Additions)+len(p.Changes))
	for _, a := range p.Additions {
		ids = append(ids, a.ID)
	}
	for _, c := range p.Changes {
		ids = append(ids, c.ID)
	}
	return ids
}

// splitIDs sorts preview ids into additions and changes by prefix.
func splitIDs(ids []string) (adds, changes []string) {
	for _, id := range ids {
		switch {
		case strings.HasPrefix(id, "add:"):
			adds = append(adds, id)
		case strings.HasPrefix(id, "chg:"):
			changes = append(changes, id)
		}
	}
	return adds, changes
}

func additionOption(a *types.SyncAddition) string {
	kind := string(a.ItemType)
	if a.ItemType == types.KindReference && a.RefType != "" {
		kind = string(a.RefType)
	}
	label := fmt.Sprintf("+ %s %q", kind, ui.TruncateSimple(ui.OneLine(a.Title), 50))
	if a.ParentTitle != "" && a.ItemType != types.KindReference {
		label += " under " + ui.TruncateSimple(ui.OneLine(a.ParentTitle), 30)
	}
	return label
}

func changeOption(c *types.SyncChange) string {
	return fmt.Sprintf("~ %s %q %s: %s -> %s", c.ItemType, ui.TruncateSimple(ui.OneLine(c.ItemTitle), 30), c.Field,
		ui.TruncateSimple(ui.OneLine(c.CurrentValue), 30), ui.TruncateSimple(ui.OneLine(c.NewValue), 30))
}

func pickInteractively(p *types.SyncPreview, title string) []string {
	options := make([]huh.Option[string], 0, len(p.Additions)+len(p.Changes))
	for _, a := range p.Additions {
		options = append(options, huh.NewOption(additionOption(a), a.ID))
	}
	for _, c := range p.Changes {
		options = append(options, huh.NewOption(changeOption(c), c.ID))
	}

	var picked []string
	confirmed := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Sync "+title).
				Description("Space to toggle, enter to continue").
				Options(options...).
				Height(min(len(options)+2, 20)).
				Value(&picked),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Apply the selected items?").
				Affirmative("Apply").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			fmt.Fprintln(os.Stderr, "Sync cancelled.")
			os.Exit(0)
		}
		FatalError("form error: %v", err)
	}
	if !confirmed || len(picked) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing applied.")
		os.Exit(0)
	}
	return picked
}

func init() {
	previewCmd.Flags().Bool("markdown", false, "Render the preview as a markdown report")
	previewCmd.Flags().Bool("no-pager", false, "Print directly instead of through a pager")

	applyCmd.Flags().StringSlice("change", nil, "Change id to apply (repeatable)")
	applyCmd.Flags().StringSlice("add", nil, "Addition id to apply (repeatable)")
	applyCmd.Flags().Bool("all", false, "Apply everything in the current preview")
	applyCmd.Flags().BoolP("interactive", "i", false, "Pick items from the preview interactively")

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(reimportCmd)
}
