package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/apperr"
	"github.com/maisonfine/stockd/internal/buildinfo"
	"github.com/maisonfine/stockd/internal/ledger"
	"github.com/maisonfine/stockd/internal/reports"
	"github.com/maisonfine/stockd/internal/serialized"
	"github.com/maisonfine/stockd/internal/services/assets"
	"github.com/maisonfine/stockd/internal/services/inventory"
	"github.com/maisonfine/stockd/internal/websocket"
)

// InventoryService is the part of the inventory service the HTTP layer uses
type InventoryService interface {
	ReceiveSerializedBatch(ctx context.Context, cmd inventory.ReceiveCommand) ([]string, error)
	AdjustAggregateStock(ctx context.Context, cmd inventory.AdjustCommand) (inventory.AdjustResult, error)
	SetSerializedItemStatus(ctx context.Context, cmd inventory.StatusCommand) (inventory.StatusChange, error)
	ListSerializedItems(ctx context.Context, f serialized.Filter) (inventory.ItemPage, error)
	GetItem(ctx context.Context, uid string) (inventory.ItemView, error)
	ListMovements(ctx context.Context, f ledger.Filter) (inventory.MovementPage, error)
	GetInventoryDetails(ctx context.Context, productID uint) (*inventory.Details, error)
	Reconcile(ctx context.Context, productID uint) (reports.Reconciliation, error)
	PrintLabels(ctx context.Context, uids []string, layout assets.LabelConfig) ([]byte, error)
}

// Options configures the router
type Options struct {
	Service InventoryService
	// Auth guards the admin and websocket routes
	Auth       func(http.Handler) http.Handler
	Hub        *websocket.Hub
	AssetsDir  string
	AssetsURL  string
	PathPrefix string
	Logger     *zap.Logger
}

// Router wraps the mux router and the inventory service
type Router struct {
	*mux.Router
	svc InventoryService
	hub *websocket.Hub
	log *zap.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(opts Options) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		svc:    opts.Service,
		hub:    opts.Hub,
		log:    opts.Logger,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	auth := opts.Auth
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	base := r.Router
	if prefix := strings.TrimRight(opts.PathPrefix, "/"); prefix != "" {
		base = r.PathPrefix(prefix).Subrouter()
	}

	// Health check endpoint
	base.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Admin inventory routes (protected)
	inv := base.PathPrefix("/api/admin/inventory").Subrouter()
	inv.Use(mux.MiddlewareFunc(auth))
	inv.HandleFunc("/serialized/receive", r.receiveSerialized).Methods("POST")
	inv.HandleFunc("/serialized/labels", r.generateLabels).Methods("POST")
	inv.HandleFunc("/serialized", r.listSerialized).Methods("GET")
	inv.HandleFunc("/serialized/{uid}", r.getSerialized).Methods("GET")
	inv.HandleFunc("/serialized/{uid}/status", r.setSerializedStatus).Methods("PUT")
	inv.HandleFunc("/adjust", r.adjustStock).Methods("POST")
	inv.HandleFunc("/movements", r.listMovements).Methods("GET")
	inv.HandleFunc("/products/{id}", r.getProductInventory).Methods("GET")
	inv.HandleFunc("/products/{id}/reconcile", r.reconcileProduct).Methods("GET")

	// Live inventory events (protected)
	if r.hub != nil {
		base.Handle("/ws/inventory", auth(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWs(r.hub, w, req)
		}))).Methods("GET")
	}

	// Generated QR codes and passports
	if opts.AssetsDir != "" {
		url := "/" + strings.Trim(opts.AssetsURL, "/") + "/"
		if url == "//" {
			url = "/assets/"
		}
		files := http.StripPrefix(strings.TrimRight(opts.PathPrefix, "/")+url, noListing(http.FileServer(http.Dir(opts.AssetsDir))))
		base.PathPrefix(url).Handler(files).Methods("GET", "HEAD")
	}

	return r
}

// noListing hides directory indexes so item uids cannot be enumerated
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "" || strings.HasSuffix(req.URL.Path, "/") {
			http.NotFound(w, req)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"build":  buildinfo.Current(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes a typed failure. Internal details stay in the log.
func (r *Router) respondServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		r.log.Error("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err),
		)
		message = "internal error"
	}
	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  apperr.CodeOf(err),
	})
}
