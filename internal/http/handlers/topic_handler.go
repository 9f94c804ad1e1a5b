// Help-topic HTTP handlers.
//
// This file exposes the read-only topic menu the widget shows before any
// conversation exists:
//   - GET /topics            (grouped menu)
//   - GET /topics/{slug}     (option detail; info options include content)
//   - GET /topics/search     (ranked content search)
//
// The catalog is immutable after startup, so these endpoints are pure reads
// with no service layer in between.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tutorlane/support-chat-backend/internal/catalog"
	"github.com/tutorlane/support-chat-backend/internal/utils"
)

// Topic option type discriminators on the wire.
const (
	TopicTypeInfo      = "info"
	TopicTypeAdminChat = "admin_chat"
)

// TopicOption is the wire shape of a single menu entry.
type TopicOption struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Emoji       string `json:"emoji,omitempty"`
	Description string `json:"description,omitempty"`
	// Type is "info" (selecting displays content) or "admin_chat"
	// (selecting leads into conversation creation).
	Type string `json:"type"`
}

// TopicCategory groups menu entries under a display name.
type TopicCategory struct {
	Name    string        `json:"name"`
	Options []TopicOption `json:"options"`
}

// TopicDetail is the wire shape of a single option with its content.
// Content is present only for info options.
type TopicDetail struct {
	TopicOption
	Content *catalog.Content `json:"content,omitempty"`
}

func toTopicOption(o catalog.Option) TopicOption {
	m := o.Meta()
	out := TopicOption{
		Slug:        m.Slug,
		Title:       m.Title,
		Emoji:       m.Emoji,
		Description: m.Description,
		Type:        TopicTypeInfo,
	}
	if _, escalate := o.(catalog.EscalateOption); escalate {
		out.Type = TopicTypeAdminChat
	}
	return out
}

// ListTopics godoc
// @ID          listTopics
// @Summary     Help-topic menu
// @Description Returns the grouped topic menu in display order.
// @Tags        Topics
// @Produce     json
//
// @Success     200  {array}  handlers.TopicCategory
// @Router      /topics [get]
func (h *Handlers) ListTopics(c *gin.Context) {
	cats := h.topics.Categories()
	out := make([]TopicCategory, 0, len(cats))
	for _, cat := range cats {
		tc := TopicCategory{Name: cat.Name, Options: make([]TopicOption, 0, len(cat.Options))}
		for _, o := range cat.Options {
			tc.Options = append(tc.Options, toTopicOption(o))
		}
		out = append(out, tc)
	}
	ok(c, http.StatusOK, out)
}

// GetTopic godoc
// @ID          getTopic
// @Summary     Topic detail
// @Description Returns an info option with its content body. Admin-chat options carry no content and 404 here; selecting them leads into conversation creation instead.
// @Tags        Topics
// @Produce     json
//
// @Param       slug  path  string  true  "Topic slug"  example(book-lesson)
//
// @Success     200  {object}  handlers.TopicDetail
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown topic or no content"
// @Router      /topics/{slug} [get]
func (h *Handlers) GetTopic(c *gin.Context) {
	slug := c.Param("slug")
	opt, found := h.topics.Option(slug)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "topic not found")
		return
	}
	content, has := h.topics.Content(slug)
	if !has {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "topic has no content")
		return
	}
	ok(c, http.StatusOK, TopicDetail{TopicOption: toTopicOption(opt), Content: &content})
}

// SearchTopics godoc
// @ID          searchTopics
// @Summary     Search topic content
// @Description Ranks info-option content against the query. Blank queries return an empty result set.
// @Tags        Topics
// @Produce     json
//
// @Param       q      query  string  true   "Search query"       example(refund policy)
// @Param       limit  query  int     false  "Max results (1-20)" default(5)
//
// @Success     200  {array}   catalog.SearchResult
// @Failure     400  {object}  handlers.ErrorResponse  "Missing query"
// @Router      /topics/search [get]
func (h *Handlers) SearchTopics(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query parameter q is required")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 5)
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}

	results := h.topics.Search(q, limit)
	if results == nil {
		results = []catalog.SearchResult{}
	}
	ok(c, http.StatusOK, results)
}
