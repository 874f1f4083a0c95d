package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// Server aggregates handler dependencies.
type Server struct {
	Tokens   map[string]string
	Projects domain.ProjectRepository
	Convs    domain.ConversationRepository
	Hot      domain.HotMessageStore
}

// NewServer constructs a Server.
func NewServer(tokens map[string]string, projects domain.ProjectRepository, convs domain.ConversationRepository, hot domain.HotMessageStore) *Server {
	return &Server{Tokens: tokens, Projects: projects, Convs: convs, Hot: hot}
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/{project}", func(r chi.Router) {
		r.Use(BearerAuth(s.Tokens))
		r.Get("/conversations", s.ListConversationsHandler())
		r.Get("/messages", s.ListMessagesHandler())
	})
	return r
}

type conversationJSON struct {
	UUID         string  `json:"uuid"`
	ContactURN   string  `json:"contact_urn"`
	ContactName  string  `json:"contact_name"`
	ChannelUUID  string  `json:"channel_uuid"`
	ExternalID   string  `json:"external_id,omitempty"`
	StartDate    *string `json:"start_date"`
	EndDate      *string `json:"end_date"`
	HasChatsRoom bool    `json:"has_chats_room"`
	CSAT         string  `json:"csat,omitempty"`
	NPS          *int    `json:"nps,omitempty"`
	Resolution   int     `json:"resolution"`
	CreatedAt    string  `json:"created_on"`
}

func toConversationJSON(c domain.Conversation) conversationJSON {
	out := conversationJSON{
		UUID:         c.UUID,
		ContactURN:   c.ContactURN,
		ContactName:  c.ContactName,
		ChannelUUID:  c.ChannelUUID,
		ExternalID:   c.ExternalID,
		HasChatsRoom: c.HasChatsRoom,
		CSAT:         c.CSAT,
		NPS:          c.NPS,
		Resolution:   int(c.Resolution),
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.StartDate != nil {
		v := c.StartDate.UTC().Format(time.RFC3339)
		out.StartDate = &v
	}
	if c.EndDate != nil {
		v := c.EndDate.UTC().Format(time.RFC3339)
		out.EndDate = &v
	}
	return out
}

// ListConversationsHandler serves filtered conversation listings for one
// project.
func (s *Server) ListConversationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := chi.URLParam(r, "project")
		ok, err := s.Projects.Exists(r.Context(), project)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, errorEnvelope{Error: apiError{Code: "NOT_FOUND", Message: "project not found"}})
			return
		}

		f := domain.ConversationFilter{}
		if v := r.URL.Query().Get("start"); v != "" {
			t, err := parseDateParam(v)
			if err != nil {
				writeError(w, err)
				return
			}
			f.Start = &t
		}
		if v := r.URL.Query().Get("end"); v != "" {
			t, err := parseDateParam(v)
			if err != nil {
				writeError(w, err)
				return
			}
			f.End = &t
		}
		f.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
		f.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))

		convs, total, err := s.Convs.ListByProject(r.Context(), project, f)
		if err != nil {
			writeError(w, err)
			return
		}
		items := make([]conversationJSON, 0, len(convs))
		for _, c := range convs {
			items = append(items, toConversationJSON(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": total, "results": items})
	}
}

// ListMessagesHandler serves one hot-store page for a contact and channel.
func (s *Server) ListMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := chi.URLParam(r, "project")
		contactURN := r.URL.Query().Get("contact_urn")
		channelUUID := r.URL.Query().Get("channel_uuid")
		if contactURN == "" || channelUUID == "" {
			writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{
				Code: "INVALID_ARGUMENT", Message: "contact_urn and channel_uuid are required",
			}})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		page, err := s.Hot.GetMessages(r.Context(), project, contactURN, channelUUID, limit, r.URL.Query().Get("cursor"))
		if err != nil {
			writeError(w, err)
			return
		}
		items := page.Items
		if items == nil {
			items = []domain.HotMessage{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": items, "next": page.NextCursor})
	}
}

func parseDateParam(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.ErrInvalidArgument
}
