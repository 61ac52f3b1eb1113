package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/jbekkers/kennisgraaf"
	"github.com/jbekkers/kennisgraaf/compliance"
	"github.com/jbekkers/kennisgraaf/suggest"
)

type errorResponse struct {
	Error string `json:"error"`
}

// httpError maps engine sentinels onto status codes. Unexpected errors are
// logged and reported as opaque 500s.
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, kennisgraaf.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, kennisgraaf.ErrInvalidInput),
		errors.Is(err, kennisgraaf.ErrUnsupportedFormat),
		errors.Is(err, kennisgraaf.ErrInvalidConfig):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	slog.Error("http: handler error", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

// documentBody is the request shape shared by document ingestion and
// standalone assessment.
type documentBody struct {
	DocumentID     string `json:"document_id"`
	Text           string `json:"text"`
	Title          string `json:"title"`
	Format         string `json:"format"`
	Domain         string `json:"domain"`
	ObjectType     string `json:"object_type"`
	Classification string `json:"classification"`
}

func (b *documentBody) options() []kennisgraaf.SuggestOption {
	return []kennisgraaf.SuggestOption{
		kennisgraaf.WithTitle(b.Title),
		kennisgraaf.WithFormat(b.Format),
		kennisgraaf.WithDomain(b.Domain),
		kennisgraaf.WithObjectType(b.ObjectType),
		kennisgraaf.WithClassification(compliance.Classification(b.Classification)),
	}
}

// createDocument runs the suggestion pipeline for one document and returns
// the assembled suggestion. A missing document id gets a generated one.
func (s *Server) createDocument(c echo.Context) error {
	type createDocumentResponse struct {
		DocumentID string              `json:"document_id"`
		Suggestion *suggest.Suggestion `json:"suggestion"`
	}

	body := new(documentBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if body.Text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "text is required"})
	}

	if body.DocumentID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return httpError(c, err)
		}
		body.DocumentID = id
	}

	sug, err := s.engine.Suggest(c.Request().Context(), body.DocumentID, body.Text, body.options()...)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, createDocumentResponse{
		DocumentID: body.DocumentID,
		Suggestion: sug,
	})
}

// createDocumentBatch ingests a batch of documents with bounded concurrency.
// Per-document failures are reported in the response, not as a request
// failure.
func (s *Server) createDocumentBatch(c echo.Context) error {
	type batchRequest struct {
		Documents []kennisgraaf.DocumentInput `json:"documents"`
	}
	type batchItem struct {
		DocumentID string              `json:"document_id"`
		Suggestion *suggest.Suggestion `json:"suggestion,omitempty"`
		Error      string              `json:"error,omitempty"`
	}
	type batchResponse struct {
		Results []batchItem `json:"results"`
		Failed  int         `json:"failed"`
	}

	body := new(batchRequest)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if len(body.Documents) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "documents is required"})
	}
	for i := range body.Documents {
		if body.Documents[i].Text == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "every document needs text"})
		}
		if body.Documents[i].DocumentID == "" {
			id, err := gonanoid.New()
			if err != nil {
				return httpError(c, err)
			}
			body.Documents[i].DocumentID = id
		}
	}

	results, err := s.engine.IngestAll(c.Request().Context(), body.Documents)
	if err != nil {
		return httpError(c, err)
	}

	resp := batchResponse{Results: make([]batchItem, len(results))}
	for i, r := range results {
		item := batchItem{DocumentID: r.DocumentID, Suggestion: r.Suggestion}
		if r.Error != nil {
			item.Error = r.Error.Error()
			resp.Failed++
		}
		resp.Results[i] = item
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listDocuments(c echo.Context) error {
	docs, err := s.engine.Documents(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) deleteDocument(c echo.Context) error {
	id := pathParam(c, "id")
	if err := s.engine.Remove(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"document_id": id})
}

func (s *Server) getSuggestion(c echo.Context) error {
	sug, err := s.engine.Suggestion(c.Request().Context(), pathParam(c, "id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, sug)
}

// assess runs a compliance assessment without mutating the graph or the
// index.
func (s *Server) assess(c echo.Context) error {
	body := new(documentBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if body.Text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "text is required"})
	}

	result, err := s.engine.Assess(c.Request().Context(), body.DocumentID, body.Text, body.options()...)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) listAssessments(c echo.Context) error {
	limit := intQuery(c, "limit", 50)
	records, err := s.engine.Assessments(c.Request().Context(), c.QueryParam("document_id"), limit)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"assessments": records})
}

func (s *Server) search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "q is required"})
	}
	hits, err := s.engine.Search(c.Request().Context(), query, intQuery(c, "limit", 10))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) similar(c echo.Context) error {
	matches, err := s.engine.Similar(pathParam(c, "id"), intQuery(c, "k", 5))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"similar": matches})
}

func (s *Server) graphStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.GraphStats())
}

func (s *Server) graphCommunities(c echo.Context) error {
	communities, err := s.engine.Communities(c.Request().Context(), floatQuery(c, "resolution", 0))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"communities": communities})
}

func (s *Server) graphPath(c echo.Context) error {
	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if from == "" || to == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "from and to are required"})
	}

	path, err := s.engine.Path(from, to, intQuery(c, "max_hops", 6))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"path":  path,
		"found": path != nil,
	})
}

// graphNeighbors lists adjacent nodes. Repeating the kind parameter narrows
// the result to those relation kinds.
func (s *Server) graphNeighbors(c echo.Context) error {
	kinds := c.QueryParams()["kind"]
	neighbors, err := s.engine.Neighbors(pathParam(c, "id"), kinds...)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"neighbors": neighbors})
}

// pathParam returns a path parameter with percent-encoding removed. Node
// ids carry spaces ("organization:gemeente almere"), so clients escape them.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// intQuery parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func intQuery(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// floatQuery parses a float query parameter, falling back to def when the
// parameter is absent or malformed.
func floatQuery(c echo.Context, name string, def float64) float64 {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
