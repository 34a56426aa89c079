package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/plotsync/plotsync/internal/importer"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// ImportRequest is the body of POST /api/projects/import.
type ImportRequest struct {
	Path   string `json:"path" binding:"required"`
	Format string `json:"format" binding:"required"`
	Title  string `json:"title"`
}

// ApplyRequest is the body of POST /api/projects/:id/sync/apply.
type ApplyRequest struct {
	ChangeIDs   []string `json:"change_ids"`
	AdditionIDs []string `json:"addition_ids"`
}

// ReclassifyRequest is the body of POST /api/projects/:id/references/:ref/type.
type ReclassifyRequest struct {
	Type string `json:"type" binding:"required"`
}

// ProjectView is the persisted tree of one project.
type ProjectView struct {
	Project    *types.Project          `json:"project"`
	Chapters   []*types.Chapter        `json:"chapters"`
	Scenes     []*types.Scene          `json:"scenes"`
	Beats      []*types.Beat           `json:"beats"`
	References []*types.Reference      `json:"references"`
	Links      []*types.SceneReference `json:"links"`
}

func (s *Server) health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"status":            "ok",
		"websocket_clients": s.hub.ClientCount(),
	})
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		s.respondErr(c, &types.StoreError{Op: "list projects", Err: err})
		return
	}
	if projects == nil {
		projects = []*types.Project{}
	}
	ok(c, http.StatusOK, projects)
}

func (s *Server) importProject(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	format, err := types.ParseFormat(req.Format)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := importer.Import(c.Request.Context(), s.store, importer.Options{
		Format:          format,
		Path:            req.Path,
		Title:           strings.TrimSpace(req.Title),
		Cache:           s.cache,
		Progress:        s.hub.Reporter("", req.Path),
		ReviewThreshold: s.reviewThreshold,
	})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	s.logger.Info("project imported", "project", res.Project.ID, "format", format, "path", req.Path)
	ok(c, http.StatusCreated, res)
}

func (s *Server) getProject(c *gin.Context) {
	id := c.Param("id")
	tree, err := storage.LoadTree(c.Request.Context(), s.store, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondErr(c, &types.NotFoundError{Kind: "project", Name: id})
		return
	}
	if err != nil {
		s.respondErr(c, &types.StoreError{Op: "load project", Err: err})
		return
	}
	ok(c, http.StatusOK, ProjectView{
		Project:    tree.Project,
		Chapters:   nonNil(tree.Chapters),
		Scenes:     nonNil(tree.Scenes),
		Beats:      nonNil(tree.Beats),
		References: nonNil(tree.References),
		Links:      nonNil(tree.Links),
	})
}

func (s *Server) preview(c *gin.Context) {
	p, err := s.engine.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (s *Server) apply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sum, err := s.engine.Apply(c.Request.Context(), c.Param("id"), req.ChangeIDs, req.AdditionIDs)
	s.summary(c, sum, err)
}

func (s *Server) reimport(c *gin.Context) {
	sum, err := s.engine.Reimport(c.Request.Context(), c.Param("id"))
	s.summary(c, sum, err)
}

// summary answers an apply or reimport. A failure after some items were
// committed still returns the summary alongside the error.
func (s *Server) summary(c *gin.Context, sum *types.ReimportSummary, err error) {
	if err == nil {
		ok(c, http.StatusOK, sum)
		return
	}
	if sum == nil {
		s.respondErr(c, err)
		return
	}
	status, code := statusOf(err)
	s.logger.Error("sync stopped partway", "project", c.Param("id"), "error", err)
	c.JSON(status, Response{
		Success:   false,
		Data:      sum,
		Error:     &APIError{Code: code, Message: err.Error()},
		Timestamp: nowUTC(),
	})
}

func (s *Server) reclassify(c *gin.Context) {
	var req ReclassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	refType := types.RefType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !refType.IsValid() {
		badRequest(c, "invalid reference type "+req.Type)
		return
	}
	ref, err := s.engine.Reclassify(c.Request.Context(), c.Param("id"), c.Param("ref"), refType)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	ok(c, http.StatusOK, ref)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
