package main

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/fsnotify/fsnotify"

	"github.com/plotsync/plotsync/internal/storage/memory"
	"github.com/plotsync/plotsync/internal/types"
)

func TestMatchProject(t *testing.T) {
	projects := []*types.Project{
		{ID: "a1b2c3", Title: "Harbour"},
		{ID: "a1ffff", Title: "Lighthouse"},
		{ID: "d4e5f6", Title: "harbour "},
	}

	tests := []struct {
		arg     string
		wantID  string
		wantErr bool
	}{
		{"a1b2", "a1b2c3", false},
		{"a1", "", true},
		{"lighthouse", "a1ffff", false},
		{"HARBOUR", "", true},
		{"nothing", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := matchProject(projects, tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("matchProject(%q) = %s, want error", tt.arg, got.ID)
				}
				return
			}
			if err != nil {
				t.Fatalf("matchProject(%q): %v", tt.arg, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("matchProject(%q) = %s, want %s", tt.arg, got.ID, tt.wantID)
			}
		})
	}

	_, err := matchProject(projects, "nothing")
	var nf *types.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("unmatched project error = %v, want NotFoundError", err)
	}
}

func TestResolveProjectByID(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	p := &types.Project{Title: "Harbour"}
	if err := gw.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := resolveProject(ctx, gw, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("resolveProject(id) = %v, %v", got, err)
	}
	got, err = resolveProject(ctx, gw, "harbour")
	if err != nil || got.ID != p.ID {
		t.Fatalf("resolveProject(title) = %v, %v", got, err)
	}
	if _, err := resolveProject(ctx, gw, "  "); err == nil {
		t.Error("blank project argument should fail")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := parseKind("Scene"); err != nil || k != types.KindScene {
		t.Errorf("parseKind(Scene) = %q, %v", k, err)
	}
	if _, err := parseKind("paragraph"); err == nil {
		t.Error("unknown kind should fail")
	}
	if _, err := parseKind("beat", types.KindChapter, types.KindScene); err == nil {
		t.Error("beat is not lockable")
	}
	if k, err := parseKind("chapter", types.KindChapter, types.KindScene); err != nil || k != types.KindChapter {
		t.Errorf("parseKind(chapter) = %q, %v", k, err)
	}
}

func TestSplitIDs(t *testing.T) {
	adds, changes := splitIDs([]string{"add:scene:s2", "chg:beat:b1:content", "bogus", "add:reference:ref:mara"})
	if !reflect.DeepEqual(adds, []string{"add:scene:s2", "add:reference:ref:mara"}) {
		t.Errorf("adds = %v", adds)
	}
	if !reflect.DeepEqual(changes, []string{"chg:beat:b1:content"}) {
		t.Errorf("changes = %v", changes)
	}
}

func TestAllIDsKeepsPreviewOrder(t *testing.T) {
	p := &types.SyncPreview{
		Additions: []*types.SyncAddition{{ID: "add:scene:s2"}, {ID: "add:beat:b3"}},
		Changes:   []*types.SyncChange{{ID: "chg:scene:x:title"}},
	}
	want := []string{"add:scene:s2", "add:beat:b3", "chg:scene:x:title"}
	if got := allIDs(p); !reflect.DeepEqual(got, want) {
		t.Errorf("allIDs = %v, want %v", got, want)
	}
}

func TestOptionLabels(t *testing.T) {
	a := &types.SyncAddition{ItemType: types.KindReference, RefType: types.RefLocation, Title: "Pier", ParentTitle: "Novel"}
	if got := additionOption(a); got != `+ location "Pier"` {
		t.Errorf("additionOption(ref) = %q", got)
	}
	a = &types.SyncAddition{ItemType: types.KindScene, Title: "Storm", ParentTitle: "Act Two"}
	if got := additionOption(a); got != `+ scene "Storm" under Act Two` {
		t.Errorf("additionOption(scene) = %q", got)
	}
	c := &types.SyncChange{ItemType: types.KindBeat, ItemTitle: "docks", Field: types.FieldContent, CurrentValue: "ship\ndocks", NewValue: "ship sinks"}
	if got := changeOption(c); got != `~ beat "docks" content: ship docks -> ship sinks` {
		t.Errorf("changeOption = %q", got)
	}
}

func TestSourceWatchRelevant(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "novel.md")

	single := newSourceWatch(file, types.FormatMarkdown)
	if got := single.dirs(); !reflect.DeepEqual(got, []string{dir}) {
		t.Errorf("single-file dirs = %v", got)
	}
	if !single.relevant(fsnotify.Event{Name: file, Op: fsnotify.Write}) {
		t.Error("write to the source should be relevant")
	}
	if single.relevant(fsnotify.Event{Name: filepath.Join(dir, "other.md"), Op: fsnotify.Write}) {
		t.Error("sibling file should be ignored")
	}
	if single.relevant(fsnotify.Event{Name: file, Op: fsnotify.Chmod}) {
		t.Error("chmod should be ignored")
	}

	vault := newSourceWatch(dir, types.FormatVault)
	if !vault.recursive || vault.root != dir {
		t.Fatalf("vault watch = %+v", vault)
	}
	if !vault.relevant(fsnotify.Event{Name: filepath.Join(dir, "scenes", "Arrival.md"), Op: fsnotify.Write}) {
		t.Error("note change should be relevant")
	}
	if vault.relevant(fsnotify.Event{Name: filepath.Join(dir, ".obsidian", "workspace.json"), Op: fsnotify.Write}) {
		t.Error("hidden folders should be ignored")
	}
}
