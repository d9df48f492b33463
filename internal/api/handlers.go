package api

import (
	"bytes"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/imagesorter/internal/apperr"
	"github.com/starford/imagesorter/internal/checksum"
	"github.com/starford/imagesorter/internal/filename"
	"github.com/starford/imagesorter/internal/models"
	"github.com/starford/imagesorter/internal/rules"
)

// Handler holds API route handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// vaultPath extracts the vault path from the wildcard part of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. Clippings%2Fnote.md).
func vaultPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return filename.NormalizePath(decoded)
}

func ruleIndex(r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	return i, err == nil && i >= 0
}

func writeRuleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidRule):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("rule not found"))
	default:
		writeInternal(w, op, err)
	}
}

// ListRules handles GET /api/rules.
//
//	@Summary		List domain rules in match order
//	@Tags			rules
//	@Produce		json
//	@Success		200	{object}	RulesResponse
//	@Security		BearerAuth
//	@Router			/rules [get]
func (h *Handler) ListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RulesResponse{Rules: h.deps.Rules.Get()})
}

// ReplaceRules handles PUT /api/rules.
//
//	@Summary		Replace the whole rule table
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReplaceRulesRequest	true	"New rule table"
//	@Success		200		{object}	RulesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules [put]
func (h *Handler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRulesRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.deps.Rules.ReplaceAndSave(req.Rules); err != nil {
		writeRuleError(w, "replace rules", err)
		return
	}
	writeJSON(w, http.StatusOK, RulesResponse{Rules: h.deps.Rules.Get()})
}

// AddRule handles POST /api/rules.
//
//	@Summary		Append a rule
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Rule	true	"Rule to append"
//	@Success		201		{object}	RuleResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules [post]
func (h *Handler) AddRule(w http.ResponseWriter, r *http.Request) {
	var rule models.Rule
	if !readJSON(w, r, &rule) {
		return
	}
	idx, stored, err := h.deps.Rules.Add(rule)
	if err != nil {
		writeRuleError(w, "add rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, RuleResponse{Index: idx, Rule: stored})
}

// UpdateRule handles PUT /api/rules/{index}.
//
//	@Summary		Overwrite the rule at an index
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			index	path		int			true	"Rule index"
//	@Param			body	body		models.Rule	true	"Replacement rule"
//	@Success		200		{object}	RuleResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{index} [put]
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	idx, ok := ruleIndex(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("index must be a non-negative integer"))
		return
	}
	var rule models.Rule
	if !readJSON(w, r, &rule) {
		return
	}
	stored, err := h.deps.Rules.Update(idx, rule)
	if err != nil {
		writeRuleError(w, "update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, RuleResponse{Index: idx, Rule: stored})
}

// DeleteRule handles DELETE /api/rules/{index}.
//
//	@Summary		Delete the rule at an index
//	@Tags			rules
//	@Param			index	path	int	true	"Rule index"
//	@Success		204		"Rule deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{index} [delete]
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	idx, ok := ruleIndex(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("index must be a non-negative integer"))
		return
	}
	if err := h.deps.Rules.Remove(idx); err != nil {
		writeRuleError(w, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SuggestFolders handles GET /api/folders.
//
//	@Summary		Suggest vault folders for a rule
//	@Tags			rules
//	@Produce		json
//	@Param			q		query		string	false	"Partial folder path"
//	@Param			limit	query		int		false	"Max results (<= 100)"
//	@Success		200		{object}	FoldersResponse
//	@Security		BearerAuth
//	@Router			/folders [get]
func (h *Handler) SuggestFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.deps.Vault.ListFolders()
	if err != nil {
		writeInternal(w, "list folders", err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, FoldersResponse{
		Folders: rules.SuggestFolders(folders, r.URL.Query().Get("q"), limit),
	})
}

// SortNote handles POST /api/sort/*.
//
//	@Summary		Run the sorter on one note now
//	@Tags			sort
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	SortResponse
//	@Failure		404		{object}	SortResponse
//	@Failure		422		{object}	SortResponse
//	@Failure		502		{object}	SortResponse
//	@Security		BearerAuth
//	@Router			/sort/{path} [post]
func (h *Handler) SortNote(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	asset, err := h.deps.Sorter.Process(r.Context(), p)
	resp := SortResponse{Path: p, Outcome: models.OutcomeSorted, Asset: asset}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	kind := apperr.KindOf(err)
	resp.ErrorKind = string(kind)
	resp.Error = err.Error()
	resp.Outcome = models.OutcomeFailed

	status := http.StatusInternalServerError
	switch {
	case kind == apperr.KindNotApplicable:
		resp.Outcome = models.OutcomeSkipped
		status = http.StatusOK
	case errors.Is(err, fs.ErrNotExist):
		status = http.StatusNotFound
	case kind == apperr.KindParse:
		status = http.StatusUnprocessableEntity
	case kind == apperr.KindNetwork:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent sorter runs, newest first
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query		int		false	"Max results"
//	@Param			outcome	query		string	false	"Filter by outcome"	Enums(sorted, skipped, failed)
//	@Success		200		{object}	RunsResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeJSON(w, http.StatusOK, RunsResponse{Runs: []models.Run{}, Counts: map[string]int{}})
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	runs, err := h.deps.Runs.List(limit, q.Get("outcome"))
	if err != nil {
		writeInternal(w, "list runs", err)
		return
	}
	counts, err := h.deps.Runs.Counts()
	if err != nil {
		writeInternal(w, "count runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs, Counts: counts})
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Get one sorter run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	models.Run
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	run, err := h.deps.Runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			writeInternal(w, "get run", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ServeAsset handles GET /api/assets/*. Hidden paths are never served.
func (h *Handler) ServeAsset(w http.ResponseWriter, r *http.Request) {
	p := vaultPath(r)
	if p == "" || hidden(p) {
		http.NotFound(w, r)
		return
	}
	data, err := h.deps.Vault.Read(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		// Traversal attempts and other read errors.
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("ETag", `"`+checksum.Sum(data)+`"`)
	http.ServeContent(w, r, path.Base(p), time.Time{}, bytes.NewReader(data))
}

func hidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
