package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/config"
	"github.com/plotsync/plotsync/internal/importer"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
	"github.com/plotsync/plotsync/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <path>",
	GroupID: GroupProject,
	Short:   "Import an outline source as a new project",
	Long: `Import an outline source as a new project.

Formats:
  toolexport   outline tool JSON export (.pltr)
  markdown     heading-based text (# chapter, ## scene, - beat)
  projectxml   yWriter7 project file (.yw7)
  vault        Obsidian Longform vault (directory or index note)

The format is never guessed; pass --format.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		formatFlag, _ := cmd.Flags().GetString("format")
		title, _ := cmd.Flags().GetString("title")

		format, err := types.ParseFormat(formatFlag)
		if err != nil {
			FatalError("%v", err)
		}

		opts := importer.Options{
			Format:          format,
			Path:            args[0],
			Title:           title,
			Cache:           newCache(),
			ReviewThreshold: config.GetReviewThreshold(),
			Suggester:       suggester(),
		}
		if !jsonOutput && !quietFlag && ui.IsTerminal() {
			opts.Progress = progressLine
		}

		res, err := importer.Import(rootCtx, store, opts)
		if opts.Progress != nil {
			fmt.Print("\r\033[K")
		}
		if err != nil {
			fatalSync(err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		fmt.Printf("%s Imported %s as %s\n", ui.RenderAdd(ui.IconAdd), ui.RenderAccent(res.Project.Title), res.Project.ID)
		fmt.Printf("  %d chapter(s), %d scene(s), %d beat(s), %d reference(s), %d link(s)\n",
			res.Counts.Chapters, res.Counts.Scenes, res.Counts.Beats, res.Counts.References, res.Counts.Links)
		for _, w := range res.Warnings {
			WarnError("%s", w)
		}
		if rep := res.Classification; rep.NeedsReview {
			fmt.Printf("\n%s %d of %d reference types were guessed. Review them with: plotsync refs %s --review\n",
				ui.RenderChange(ui.IconWarn), rep.Guessed, rep.Total, res.Project.ID)
		}
	},
}

// progressLine redraws a single status line for long scans.
func progressLine(ev reader.ProgressEvent) {
	if ev.Total > 0 {
		fmt.Printf("\r\033[K%s %s %d/%d", ev.Format, ev.Stage, ev.Current, ev.Total)
		return
	}
	fmt.Printf("\r\033[K%s %s %s", ev.Format, ev.Stage, ui.TruncateSimple(ev.Message, 60))
}

func init() {
	importCmd.Flags().StringP("format", "f", "", "Source format: toolexport, markdown, projectxml, vault (required)")
	importCmd.Flags().StringP("title", "t", "", "Project title (default: taken from the source)")
	_ = importCmd.MarkFlagRequired("format")
	rootCmd.AddCommand(importCmd)
}
