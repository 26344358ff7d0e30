package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/attendee"
	"checkin/internal/navigator"
	"checkin/internal/roster"
	"checkin/internal/store"
)

// sessionResponse is what an operator's screen renders: the navigator state,
// the visible list for list views and the selected person for detail views.
type sessionResponse struct {
	navigator.Snapshot
	List     []attendee.Person `json:"list,omitempty"`
	Person   *attendee.Person  `json:"person,omitempty"`
	Stats    roster.Stats      `json:"stats"`
	Switched *bool             `json:"switched,omitempty"`
}

func (h *Handler) render(snap navigator.Snapshot) sessionResponse {
	resp := sessionResponse{Snapshot: snap, Stats: h.svc.Stats(snap.Mode)}
	switch snap.View {
	case navigator.Pending:
		resp.List = h.svc.Buckets(snap.Mode, snap.Query).Pending
	case navigator.Completed:
		resp.List = h.svc.Buckets(snap.Mode, snap.Query).CheckedIn
	default:
		if p, ok := h.svc.Get(snap.Mode, snap.Selected); ok {
			resp.Person = &p
		}
	}
	return resp
}

func (h *Handler) session(c *gin.Context) (*navigator.Session, bool) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return s, true
}

// reply renders the session after an action. Failed actions leave the
// session state unchanged.
func (h *Handler) reply(c *gin.Context, snap navigator.Snapshot, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(snap))
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	mode := attendee.Student
	var req modeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		k, err := attendee.ParseKind(req.Mode)
		if err != nil {
			badRequest(c, err)
			return
		}
		mode = k
	}
	s := h.sessions.Create(mode)
	c.JSON(http.StatusCreated, h.render(s.Snapshot()))
}

func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.render(s.Snapshot()))
}

func (h *Handler) DeleteSession(c *gin.Context) {
	h.sessions.Delete(c.Param("sid"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) SessionSelect(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	snap, err := s.Act(func(mode attendee.Kind, n *navigator.Navigator) error {
		p, found := h.svc.Get(mode, req.ID)
		if !found {
			return fmt.Errorf("%s %s: %w", mode, req.ID, store.ErrNotFound)
		}
		return n.Select(p)
	})
	h.reply(c, snap, err)
}

func (h *Handler) SessionBack(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.Do(func(n *navigator.Navigator) error { return n.Back() })
	h.reply(c, snap, err)
}

func (h *Handler) SessionTab(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Tab string `json:"tab" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tab, err := navigator.ParseView(req.Tab)
	if err != nil {
		badRequest(c, err)
		return
	}
	var switched bool
	snap, err := s.Do(func(n *navigator.Navigator) error {
		var err error
		switched, err = n.SwitchTab(tab)
		return err
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := h.render(snap)
	resp.Switched = &switched
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SessionQuery(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(s.SetQuery(req.Query)))
}

func (h *Handler) SessionMode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := attendee.ParseKind(req.Mode)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.render(s.SetMode(mode)))
}

// SessionCheckIn checks in the person shown in the detail view and returns to
// the pending list. On failure the detail view stays open.
func (h *Handler) SessionCheckIn(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.Act(func(mode attendee.Kind, n *navigator.Navigator) error {
		st := n.State()
		if st.View != navigator.Detail {
			return fmt.Errorf("%w: check-in from %s", navigator.ErrInvalidTransition, st.View)
		}
		if _, err := h.svc.CheckIn(c.Request.Context(), mode, st.Selected, operator(c)); err != nil {
			return err
		}
		return n.CheckedIn()
	})
	h.reply(c, snap, err)
}

// SessionCheckOut undoes a check-in from the checked-in detail view and
// returns to the completed list.
func (h *Handler) SessionCheckOut(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.Act(func(mode attendee.Kind, n *navigator.Navigator) error {
		st := n.State()
		if st.View != navigator.CheckedInDetail {
			return fmt.Errorf("%w: check-out from %s", navigator.ErrInvalidTransition, st.View)
		}
		if _, err := h.svc.CheckOut(c.Request.Context(), mode, st.Selected, operator(c)); err != nil {
			return err
		}
		return n.CheckedOut()
	})
	h.reply(c, snap, err)
}
