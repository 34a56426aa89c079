package ui

import (
	"fmt"
	"strings"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// RenderPreview lays a sync preview out as a tree: additions grouped
// under their parent, then each change with its old and new value.
func RenderPreview(p *types.SyncPreview, projectTitle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderCategory("sync preview"), projectTitle)
	b.WriteString(RenderSeparator() + "\n")

	if p.IsEmpty() {
		b.WriteString(RenderMuted("Nothing to sync: the project matches its source.") + "\n")
		return b.String()
	}

	if len(p.Additions) > 0 {
		fmt.Fprintf(&b, "\n%s (%d)\n", RenderCategory("additions"), len(p.Additions))
		for _, group := range groupByParent(p.Additions) {
			b.WriteString(group.parent + "\n")
			for i, a := range group.items {
				branch := TreeBranch
				if i == len(group.items)-1 {
					branch = TreeLast
				}
				fmt.Fprintf(&b, "%s%s %-9s %s  %s\n",
					RenderMuted(branch), RenderAdd(IconAdd), additionLabel(a),
					TruncateSimple(OneLine(a.Title), 60), RenderMuted(a.ID))
			}
		}
	}

	if len(p.Changes) > 0 {
		fmt.Fprintf(&b, "\n%s (%d)\n", RenderCategory("changes"), len(p.Changes))
		for _, c := range p.Changes {
			fmt.Fprintf(&b, "%s %s %q %s  %s\n",
				RenderChange(IconChange), c.ItemType, TruncateSimple(OneLine(c.ItemTitle), 50),
				c.Field, RenderMuted(c.ID))
			fmt.Fprintf(&b, "%s%s\n", TreeIndent, OldValueStyle.Render(valueOrEmpty(c.CurrentValue)))
			fmt.Fprintf(&b, "%s%s\n", TreeIndent, RenderAdd(valueOrEmpty(c.NewValue)))
		}
	}
	return b.String()
}

type additionGroup struct {
	parent string
	items  []*types.SyncAddition
}

// groupByParent groups consecutive additions sharing a parent.
func groupByParent(adds []*types.SyncAddition) []additionGroup {
	var out []additionGroup
	for _, a := range adds {
		parent := a.ParentTitle
		if a.ItemType == types.KindReference {
			parent = "References"
		}
		if n := len(out); n > 0 && out[n-1].parent == parent {
			out[n-1].items = append(out[n-1].items, a)
			continue
		}
		out = append(out, additionGroup{parent: parent, items: []*types.SyncAddition{a}})
	}
	return out
}

func additionLabel(a *types.SyncAddition) string {
	if a.ItemType == types.KindReference && a.RefType != "" {
		return string(a.RefType)
	}
	return string(a.ItemType)
}

func valueOrEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}

// PreviewMarkdown renders a sync preview as a markdown document for
// RenderMarkdown.
func PreviewMarkdown(p *types.SyncPreview, projectTitle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sync preview: %s\n\n", projectTitle)
	if p.IsEmpty() {
		b.WriteString("Nothing to sync: the project matches its source.\n")
		return b.String()
	}

	if len(p.Additions) > 0 {
		b.WriteString("## Additions\n\n| Type | Title | Under | Position | ID |\n|---|---|---|---|---|\n")
		for _, a := range p.Additions {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | `%s` |\n",
				additionLabel(a), cell(a.Title), cell(a.ParentTitle), a.Position, a.ID)
		}
		b.WriteString("\n")
	}

	if len(p.Changes) > 0 {
		b.WriteString("## Changes\n\n")
		for _, c := range p.Changes {
			fmt.Fprintf(&b, "### %s %q: %s\n\n", c.ItemType, OneLine(c.ItemTitle), c.Field)
			fmt.Fprintf(&b, "- **current:** %s\n- **proposed:** %s\n- id: `%s`\n\n",
				OneLine(valueOrEmpty(c.CurrentValue)), OneLine(valueOrEmpty(c.NewValue)), c.ID)
		}
	}
	return b.String()
}

func cell(s string) string {
	return strings.ReplaceAll(OneLine(s), "|", `\|`)
}

// RenderSummary reports what an apply or reimport did.
func RenderSummary(sum *types.ReimportSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s added %d chapter(s), %d scene(s), %d beat(s), %d reference(s)\n",
		RenderAdd(IconAdd), sum.ChaptersAdded, sum.ScenesAdded, sum.BeatsAdded, sum.ReferencesAdded)
	fmt.Fprintf(&b, "%s updated %d chapter(s), %d scene(s), %d beat(s)\n",
		RenderChange(IconChange), sum.ChaptersUpdated, sum.ScenesUpdated, sum.BeatsUpdated)
	fmt.Fprintf(&b, "%s\n", RenderMuted(fmt.Sprintf("  prose left untouched on %d item(s)", sum.ProseUntouched)))
	for _, w := range sum.Skipped {
		fmt.Fprintf(&b, "%s %s\n", RenderChange(IconWarn), w.Error())
	}
	return b.String()
}

// RenderTree draws a persisted project with lock and archive markers.
func RenderTree(t *storage.Tree) string {
	scenes := make(map[string][]*types.Scene)
	for _, sc := range t.Scenes {
		scenes[sc.ChapterID] = append(scenes[sc.ChapterID], sc)
	}
	beats := make(map[string][]*types.Beat)
	for _, bt := range t.Beats {
		beats[bt.SceneID] = append(beats[bt.SceneID], bt)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", RenderCategory(t.Project.Title), RenderMuted(t.Project.ID))
	if src := types.Deref(t.Project.SourcePath); src != "" {
		fmt.Fprintf(&b, "%s\n", RenderMuted(fmt.Sprintf("%s (%s)", src, t.Project.SourceFormat)))
	}

	for ci, ch := range t.Chapters {
		lastCh := ci == len(t.Chapters)-1
		fmt.Fprintf(&b, "%s%s%s\n", RenderMuted(branch(lastCh)), ch.Title, markers(ch.Locked, ch.Archived, ch.ID))
		chPad := pad(lastCh)
		chScenes := scenes[ch.ID]
		for si, sc := range chScenes {
			lastSc := si == len(chScenes)-1
			fmt.Fprintf(&b, "%s%s%s%s\n", RenderMuted(chPad), RenderMuted(branch(lastSc)), sc.Title, markers(sc.Locked, sc.Archived, sc.ID))
			scPad := chPad + pad(lastSc)
			scBeats := beats[sc.ID]
			for bi, bt := range scBeats {
				line := TruncateSimple(OneLine(bt.Content), 70)
				if bt.Archived {
					line += " " + RenderMuted("[archived]")
				}
				fmt.Fprintf(&b, "%s%s%s\n", RenderMuted(scPad), RenderMuted(branch(bi == len(scBeats)-1)), RenderMuted(line))
			}
		}
	}

	if len(t.References) > 0 {
		counts := make(map[types.RefType]int)
		for _, r := range t.References {
			counts[r.Type]++
		}
		var parts []string
		for _, rt := range types.RefTypes {
			if n := counts[rt]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, rt))
			}
		}
		fmt.Fprintf(&b, "\n%s %s\n", RenderCategory("references"), strings.Join(parts, ", "))
	}
	return b.String()
}

func branch(last bool) string {
	if last {
		return TreeLast
	}
	return TreeBranch
}

func pad(last bool) string {
	if last {
		return TreeIndent
	}
	return TreePipe
}

func markers(locked, archived bool, id string) string {
	var m string
	if locked {
		m += " " + IconLock
	}
	if archived {
		m += " " + RenderMuted("[archived]")
	}
	return m + "  " + RenderMuted(id)
}
