package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/classify"
	"github.com/plotsync/plotsync/internal/config"
	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/types"
	"github.com/plotsync/plotsync/internal/ui"
)

var refsCmd = &cobra.Command{
	Use:     "refs <project>",
	GroupID: GroupProject,
	Short:   "List a project's references and how their types were decided",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		review, _ := cmd.Flags().GetBool("review")
		p := mustProject(args[0])

		refs, err := store.GetReferences(rootCtx, p.ID)
		if err != nil {
			FatalError("load references: %v", err)
		}
		report := classify.Summarize(classify.ResultsOf(refs), config.GetReviewThreshold())

		shown := make([]*types.Reference, 0, len(refs))
		for _, r := range refs {
			if r.Archived {
				continue
			}
			if review && !(classify.Result{Basis: r.Classification}).Guessed() {
				continue
			}
			shown = append(shown, r)
		}
		sort.SliceStable(shown, func(i, j int) bool {
			if shown[i].Type != shown[j].Type {
				return typeOrder(shown[i].Type) < typeOrder(shown[j].Type)
			}
			return idgen.FoldName(shown[i].Name) < idgen.FoldName(shown[j].Name)
		})

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"report":     report,
				"references": shown,
			})
			return
		}

		var current types.RefType
		for _, r := range shown {
			if r.Type != current {
				current = r.Type
				fmt.Printf("\n%s\n", ui.RenderCategory(string(current)))
			}
			fmt.Printf("  %-30s %s  %s\n", ui.TruncateSimple(r.Name, 30),
				ui.RenderMuted(fmt.Sprintf("%s/%s", r.Classification, r.Confidence)), ui.RenderMuted(r.ID))
		}
		fmt.Printf("\n%d reference(s), %d guessed (%.0f%%)\n", report.Total, report.Guessed, report.Share*100)
		if report.NeedsReview && !review {
			fmt.Printf("%s Many types were guessed. See them with --review and fix with 'plotsync reclassify'.\n", ui.RenderChange(ui.IconWarn))
		}
	},
}

var reclassifyCmd = &cobra.Command{
	Use:     "reclassify <project> <reference> <type>",
	GroupID: GroupProject,
	Short:   "Set a reference's type by hand",
	Long: `Set a reference's type by hand. The reference may be named by id or
by name. Types: character, location, item, objective, organization.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		refType := types.RefType(strings.ToLower(args[2]))
		if !refType.IsValid() {
			FatalError("invalid reference type %q (want one of %v)", args[2], types.RefTypes)
		}
		p := mustProject(args[0])
		refID, err := resolveReference(p.ID, args[1])
		if err != nil {
			fatalSync(err)
		}
		ref, err := newEngine().Reclassify(rootCtx, p.ID, refID, refType)
		if err != nil {
			fatalSync(err)
		}
		if jsonOutput {
			outputJSON(ref)
		}
	},
}

// resolveReference accepts a reference id or a name unique within the
// project.
func resolveReference(projectID, arg string) (string, error) {
	refs, err := store.GetReferences(rootCtx, projectID)
	if err != nil {
		return "", &types.StoreError{Op: "load references", Err: err}
	}
	folded := idgen.FoldName(arg)
	var matches []*types.Reference
	for _, r := range refs {
		if r.ID == arg {
			return r.ID, nil
		}
		if idgen.FoldName(r.Name) == folded {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return "", &types.NotFoundError{Kind: "reference", Name: arg}
	case 1:
		return matches[0].ID, nil
	}
	kinds := make([]string, len(matches))
	for i, r := range matches {
		kinds[i] = fmt.Sprintf("%s (%s)", r.ID, r.Type)
	}
	return "", fmt.Errorf("%q names several references: %s", arg, strings.Join(kinds, ", "))
}

func typeOrder(t types.RefType) int {
	for i, rt := range types.RefTypes {
		if rt == t {
			return i
		}
	}
	return len(types.RefTypes)
}

func init() {
	refsCmd.Flags().Bool("review", false, "Only show references whose type was guessed")
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(reclassifyCmd)
}
