package stream

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/constant"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/ichie-benjamin/market-pulse/internal/service/distribution"
	"github.com/sirupsen/logrus"
)

// SubscribeRequest is the inbound control message on a stream connection.
type SubscribeRequest struct {
	Action   string   `json:"action"`
	Mode     string   `json:"mode"`
	Category string   `json:"category,omitempty"`
	Symbols  []string `json:"symbols,omitempty"`
	Turbo    []string `json:"turbo,omitempty"`
}

type Handler struct {
	hub      *distribution.Hub
	cfg      config.StreamConfig
	upgrader websocket.Upgrader
}

func NewStreamHandler(hub *distribution.Hub, cfg config.StreamConfig) *Handler {
	h := &Handler{hub: hub, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.Serve)
}

// checkOrigin allows same-origin and configured origins; an empty allowlist
// admits everyone (non-browser clients send no Origin header at all).
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}

	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	return false
}

func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Debugf("ws upgrade failed: %v", err)
		return
	}

	client := distribution.NewClient(uuid.NewString(), h.cfg.MailboxSize)
	logger := logrus.WithField("client", client.ID)
	logger.Info("stream client connected")

	go client.WritePump(conn, h.cfg)

	defer func() {
		h.hub.UnsubscribeAll(client)
		client.Close()
		logger.Info("stream client disconnected")
	}()

	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("ws read failed: %v", err)
			}
			return
		}

		var req SubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			client.Enqueue(errorFrame("invalid_request", "malformed subscribe message"))
			continue
		}

		h.handleRequest(r, client, req, logger)
	}
}

func (h *Handler) handleRequest(r *http.Request, client *distribution.Client, req SubscribeRequest, logger *logrus.Entry) {
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case constant.StreamActionSubscribe:
	case constant.StreamActionUnsubscribe:
		h.hub.UnsubscribeAll(client)
		client.Enqueue(ackFrame("unsubscribed"))
		return
	default:
		client.Enqueue(errorFrame("invalid_action", "action must be subscribe or unsubscribe"))
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case constant.StreamModeAll:
		h.hub.SubscribeAll(client)
	case constant.StreamModeCategory:
		category, err := entity.ParseCategory(req.Category)
		if err != nil {
			client.Enqueue(errorFrame("invalid_category", err.Error()))
			return
		}
		h.hub.SubscribeCategory(client, category)
	case constant.StreamModeSymbols:
		if len(req.Symbols) == 0 {
			client.Enqueue(errorFrame("missing_symbols", "symbols mode requires a symbol list"))
			return
		}
		h.hub.SubscribeSymbols(r.Context(), client, req.Symbols)
	case "":
		if len(req.Turbo) == 0 {
			client.Enqueue(errorFrame("invalid_mode", "mode must be all, category or symbols"))
			return
		}
	default:
		client.Enqueue(errorFrame("invalid_mode", "mode must be all, category or symbols"))
		return
	}

	if len(req.Turbo) > 0 {
		h.hub.RegisterTurbo(client, req.Turbo)
	}

	logger.WithFields(logrus.Fields{
		"mode":  req.Mode,
		"turbo": len(req.Turbo),
	}).Info("subscription updated")

	client.Enqueue(ackFrame(req.Mode))
}

func ackFrame(mode string) []byte {
	payload, _ := json.Marshal(distribution.Frame{Event: constant.StreamEventAck, Data: mode})
	return payload
}

func errorFrame(code, message string) []byte {
	payload, _ := json.Marshal(distribution.Frame{
		Event: constant.StreamEventError,
		Data:  map[string]string{"code": code, "message": message},
	})

	return payload
}
