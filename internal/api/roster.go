package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"checkin/internal/attendee"
	"checkin/internal/importer"
	"checkin/internal/roster"
	"checkin/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type rosterResponse struct {
	Kind    attendee.Kind  `json:"kind"`
	Query   string         `json:"query"`
	Buckets roster.Buckets `json:"buckets"`
	Stats   roster.Stats   `json:"stats"`
}

func kindParam(c *gin.Context) (attendee.Kind, bool) {
	kind, err := attendee.ParseKind(c.Param("kind"))
	if err != nil {
		badRequest(c, err)
		return "", false
	}
	return kind, true
}

func operator(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(OperatorHeader))
}

// Roster returns the cached roster split into pending and checked-in people.
// Stats always count the whole roster.
func (h *Handler) Roster(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	q := c.Query("q")
	c.JSON(http.StatusOK, rosterResponse{
		Kind:    kind,
		Query:   q,
		Buckets: h.svc.Buckets(kind, q),
		Stats:   h.svc.Stats(kind),
	})
}

// Search runs the query against the store instead of the cached roster.
func (h *Handler) Search(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	people, err := h.svc.Search(c.Request.Context(), kind, c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "people": people})
}

// PeopleByState lists pending or checked-in people straight from the store.
func (h *Handler) PeopleByState(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	raw := c.Query("checked_in")
	if raw == "" {
		c.JSON(http.StatusOK, gin.H{"kind": kind, "people": h.svc.People(kind)})
		return
	}
	checkedIn, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid checked_in %q", raw))
		return
	}
	people, err := h.svc.FetchByState(c.Request.Context(), kind, checkedIn)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "people": people})
}

func (h *Handler) Person(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	p, found := h.svc.Get(kind, c.Param("id"))
	if !found {
		h.writeError(c, fmt.Errorf("%s %s: %w", kind, c.Param("id"), store.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdatePerson merges a sparse JSON patch. null clears a field, "" leaves it.
func (h *Handler) UpdatePerson(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var patch attendee.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Update(c.Request.Context(), kind, c.Param("id"), patch, operator(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CheckIn(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	p, err := h.svc.CheckIn(c.Request.Context(), kind, c.Param("id"), operator(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CheckOut(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	p, err := h.svc.CheckOut(c.Request.Context(), kind, c.Param("id"), operator(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Reload refetches the roster of kind from the store.
func (h *Handler) Reload(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	n, err := h.svc.Load(c.Request.Context(), kind)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "loaded": n, "stats": h.svc.Stats(kind)})
}

// Export downloads the cached roster as a workbook.
func (h *Handler) Export(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := importer.WriteXLSX(&buf, kind, h.svc.People(kind)); err != nil {
		h.writeError(c, err)
		return
	}
	name := fmt.Sprintf("%s-%s.xlsx", kind.Table(), time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
