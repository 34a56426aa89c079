package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
	"github.com/plotsync/plotsync/internal/ui"
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	GroupID: GroupProject,
	Short:   "List imported projects",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		projects, err := store.ListProjects(rootCtx)
		if err != nil {
			FatalError("list projects: %v", err)
		}
		if jsonOutput {
			if projects == nil {
				projects = []*types.Project{}
			}
			outputJSON(projects)
			return
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Import one with: plotsync import <path> --format <format>")
			return
		}
		for _, p := range projects {
			src := types.Deref(p.SourcePath)
			if src == "" {
				src = "(no source)"
			}
			fmt.Printf("%s  %s  %s\n", ui.RenderMuted(p.ID), ui.RenderAccent(ui.TruncateSimple(p.Title, 40)),
				ui.RenderMuted(fmt.Sprintf("%s %s", p.SourceFormat, src)))
		}
	},
}

var showCmd = &cobra.Command{
	Use:     "show <project>",
	GroupID: GroupProject,
	Short:   "Show a project's chapters, scenes and beats",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := mustProject(args[0])
		tree, err := storage.LoadTree(rootCtx, store, p.ID)
		if errors.Is(err, storage.ErrNotFound) {
			fatalSync(&types.NotFoundError{Kind: "project", Name: p.ID})
		}
		if err != nil {
			FatalError("load project: %v", err)
		}
		if jsonOutput {
			outputJSON(treeJSON(tree))
			return
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		if err := ui.ToPager(ui.RenderTree(tree), ui.PagerOptions{NoPager: noPager}); err != nil {
			WarnError("pager: %v", err)
		}
	},
}

func treeJSON(t *storage.Tree) map[string]interface{} {
	return map[string]interface{}{
		"project":    t.Project,
		"chapters":   t.Chapters,
		"scenes":     t.Scenes,
		"beats":      t.Beats,
		"references": t.References,
		"links":      t.Links,
	}
}

func init() {
	showCmd.Flags().Bool("no-pager", false, "Print directly instead of through a pager")
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(showCmd)
}
