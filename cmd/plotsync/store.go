package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plotsync/plotsync/internal/classify"
	"github.com/plotsync/plotsync/internal/config"
	"github.com/plotsync/plotsync/internal/debug"
	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/importer"
	"github.com/plotsync/plotsync/internal/projectlock"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/storage/factory"
	"github.com/plotsync/plotsync/internal/syncer"
	"github.com/plotsync/plotsync/internal/telemetry"
	"github.com/plotsync/plotsync/internal/types"
)

func openStore(ctx context.Context, backend, path string) (storage.Gateway, error) {
	s, err := factory.New(ctx, backend, path)
	if err != nil {
		return nil, err
	}
	debug.Logf("opened %s database %s\n", backend, path)
	return telemetry.WrapGateway(s), nil
}

func newCache() *reader.Cache {
	cache, err := reader.NewCache(reader.Default(), config.GetCacheSize())
	if err != nil {
		WarnError("parse cache disabled: %v", err)
		return nil
	}
	return cache
}

// lockManager builds the cross-process lock manager. A configured timeout
// of zero means a single attempt.
func lockManager() *projectlock.Manager {
	timeout := config.GetLockTimeout()
	if timeout == 0 {
		timeout = -1
	}
	return projectlock.New(config.DataDir(), timeout)
}

// newEngine wires a sync engine to the open store with CLI feedback.
func newEngine() *syncer.Engine {
	e := syncer.NewEngine(store, newCache(), lockManager())
	e.Logger = debug.Logger().With("actor", actor)
	e.OnMessage = func(msg string) {
		if !jsonOutput {
			debug.PrintNormal("%s\n", msg)
		}
	}
	e.OnWarning = func(msg string) {
		if !jsonOutput {
			WarnError("%s", msg)
		}
	}
	return e
}

// suggester returns the AI classification suggester when enabled. A missing
// API key only warns.
func suggester() importer.Suggester {
	ai := config.GetAISettings()
	if !ai.Enabled {
		return nil
	}
	s, err := classify.NewSuggester("", ai.Model)
	if err != nil {
		WarnError("AI classification disabled: %v", err)
		return nil
	}
	return s
}

// resolveProject finds a project by id, id prefix or title.
func resolveProject(ctx context.Context, gw storage.Gateway, arg string) (*types.Project, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("project id or title is required")
	}
	p, err := gw.GetProject(ctx, arg)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, &types.StoreError{Op: "get project", Err: err}
	}

	projects, err := gw.ListProjects(ctx)
	if err != nil {
		return nil, &types.StoreError{Op: "list projects", Err: err}
	}
	return matchProject(projects, arg)
}

func matchProject(projects []*types.Project, arg string) (*types.Project, error) {
	folded := idgen.FoldName(arg)
	var byPrefix, byTitle []*types.Project
	for _, p := range projects {
		if strings.HasPrefix(p.ID, arg) {
			byPrefix = append(byPrefix, p)
		}
		if idgen.FoldName(p.Title) == folded {
			byTitle = append(byTitle, p)
		}
	}
	for _, candidates := range [][]*types.Project{byPrefix, byTitle} {
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0], nil
		default:
			ids := make([]string, len(candidates))
			for i, p := range candidates {
				ids[i] = p.ID
			}
			return nil, fmt.Errorf("%q is ambiguous: matches %s", arg, strings.Join(ids, ", "))
		}
	}
	return nil, &types.NotFoundError{Kind: "project", Name: arg}
}

// mustProject resolves args[0] or exits.
func mustProject(arg string) *types.Project {
	p, err := resolveProject(rootCtx, store, arg)
	if err != nil {
		fatalSync(err)
	}
	return p
}

// parseKind parses an item kind, restricted to allowed when given.
func parseKind(s string, allowed ...types.ItemKind) (types.ItemKind, error) {
	k := types.ItemKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown item kind %q", s)
	}
	if len(allowed) == 0 {
		return k, nil
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		if a == k {
			return k, nil
		}
		names[i] = string(a)
	}
	return "", fmt.Errorf("%s is not allowed here (want %s)", k, strings.Join(names, " or "))
}
