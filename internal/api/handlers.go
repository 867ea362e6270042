package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ilkoid/poncho-relay/pkg/app"
	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/eventbus"
	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

type handlers struct {
	components *app.Components
	outbox     *Outbox
}

// EventRequest — входящее событие от адаптера платформы.
//
// Text — сокращение для одного plain-сегмента, добавляется после Components.
type EventRequest struct {
	PlatformID  string               `json:"platform_id"`
	MessageType string               `json:"message_type"`
	MessageID   string               `json:"message_id"`
	SenderID    string               `json:"sender_id"`
	SenderName  string               `json:"sender_name"`
	GroupID     string               `json:"group_id"`
	SelfID      string               `json:"self_id"`
	Components  []platform.Component `json:"components"`
	Text        string               `json:"text"`
}

// Event строит MessageEvent.
func (req EventRequest) Event() (*platform.MessageEvent, error) {
	if req.PlatformID == "" || req.SenderID == "" {
		return nil, errors.New("platform_id and sender_id are required")
	}
	mt := platform.MessageType(req.MessageType)
	switch mt {
	case "":
		mt = platform.FriendMessage
		if req.GroupID != "" {
			mt = platform.GroupMessage
		}
	case platform.FriendMessage, platform.GroupMessage, platform.OtherMessage:
	default:
		return nil, fmt.Errorf("unsupported message_type %q", req.MessageType)
	}

	comps := append([]platform.Component(nil), req.Components...)
	if req.Text != "" {
		comps = append(comps, platform.Plain(req.Text))
	}
	if len(comps) == 0 {
		return nil, errors.New("event has no components")
	}

	return platform.NewMessageEvent(platform.EventInit{
		PlatformID:  req.PlatformID,
		MessageType: mt,
		MessageID:   req.MessageID,
		SenderID:    req.SenderID,
		SenderName:  req.SenderName,
		GroupID:     req.GroupID,
		SelfID:      req.SelfID,
		Components:  comps,
	}), nil
}

// EventResponse — ответ POST /v1/events.
type EventResponse struct {
	EventID string `json:"event_id"`
	UMO     string `json:"umo"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	ChainID string `json:"chain_id,omitempty"`
	Resumed bool   `json:"resumed,omitempty"`
	Error   string `json:"error,omitempty"`
	Reply   string `json:"reply,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"queue":          h.components.Bus.Len(),
		"waits":          h.components.Chains.Waits().Len(),
		"outbox_pending": h.outbox.Pending(),
	})
}

type chainView struct {
	*chain.Config
	Fingerprint string `json:"fingerprint"`
}

func chainViews(chains []*chain.Config) []chainView {
	out := make([]chainView, 0, len(chains))
	for _, c := range chains {
		out = append(out, chainView{Config: c, Fingerprint: c.Fingerprint()})
	}
	return out
}

func (h *handlers) listChains(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, chainViews(h.components.Router.Chains()))
}

func (h *handlers) reloadChains(w http.ResponseWriter, r *http.Request) {
	chains, err := h.components.ReloadChains(r.Context())
	if err != nil {
		utils.Warn("Chain reload failed", "error", err)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chainViews(chains))
}

func (h *handlers) postEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	event, err := req.Event()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))
	if !sync {
		if err := h.components.Bus.Publish(event); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, eventbus.ErrClosed) {
				status = http.StatusServiceUnavailable
			}
			respondError(w, status, err.Error())
			return
		}
		respondJSON(w, http.StatusAccepted, EventResponse{
			EventID: event.ID(),
			UMO:     event.UnifiedMsgOrigin(),
			Status:  "queued",
		})
		return
	}

	out := h.components.Handle(r.Context(), event)
	resp := EventResponse{
		EventID: event.ID(),
		UMO:     event.UnifiedMsgOrigin(),
		Status:  out.Status.String(),
		Reason:  out.Reason,
		ChainID: out.ChainID,
		Resumed: out.Resumed,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	if out.Status == pipeline.StatusSent {
		resp.Reply = event.Result().Text()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) drainOutbox(w http.ResponseWriter, r *http.Request) {
	umo, err := url.PathUnescape(chi.URLParam(r, "umo"))
	if err != nil || umo == "" {
		respondError(w, http.StatusBadRequest, "invalid umo")
		return
	}
	msgs := h.outbox.Drain(umo)
	if msgs == nil {
		msgs = []OutboxMessage{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		utils.Warn("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
