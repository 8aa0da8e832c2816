// Package http serves the read-only status API of the running bots.
package http

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/bot"
)

// BotSource provides the bots to report on.
type BotSource interface {
	Bots() []*bot.Bot
	Bot(name string) *bot.Bot
}

type handler struct {
	log    *zap.Logger
	bots   BotSource
	router http.Handler
}

// BotStatus is the JSON view of a bot.
type BotStatus struct {
	Name          string   `json:"name"`
	Enabled       bool     `json:"enabled"`
	Status        string   `json:"status"`
	GatewayStatus string   `json:"gateway_status"`
	Addons        []string `json:"addons"`
	Commands      []string `json:"commands"`
}

// New constructs the status API handler.
func New(log *zap.Logger, bots BotSource) http.Handler {
	r := chi.NewRouter()
	h := handler{
		log:    log,
		bots:   bots,
		router: r,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/bots", ErrorHandler(h.botsHandler, h.log))
	r.Get("/bots/{name}", ErrorHandler(h.botHandler, h.log))
	return &h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *handler) botsHandler(w http.ResponseWriter, r *http.Request) error {
	out := []BotStatus{}
	for _, b := range h.bots.Bots() {
		out = append(out, statusOf(b))
	}
	render.JSON(w, r, out)
	return nil
}

func (h *handler) botHandler(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	b := h.bots.Bot(name)
	if b == nil {
		return Error(errors.Errorf("unknown bot: %s", name), http.StatusNotFound)
	}
	render.JSON(w, r, statusOf(b))
	return nil
}

func statusOf(b *bot.Bot) BotStatus {
	addons := []string{}
	for _, a := range b.LoadedAddons() {
		addons = append(addons, a.Info().ID)
	}
	return BotStatus{
		Name:          b.Name(),
		Enabled:       b.Enabled(),
		Status:        b.Status().String(),
		GatewayStatus: b.GatewayStatus(),
		Addons:        addons,
		Commands:      b.Commands(),
	}
}
