package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/maisonfine/stockd/internal/models"
	"github.com/maisonfine/stockd/internal/services/inventory"
)

// receiveSerialized registers a batch of individually tracked units
func (r *Router) receiveSerialized(w http.ResponseWriter, req *http.Request) {
	var body receiveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cmd, err := body.command(actorID(req))
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}

	uids, err := r.svc.ReceiveSerializedBatch(req.Context(), cmd)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, receiveResponse{ItemUIDs: uids, Count: len(uids)})
}

// adjustStock applies a manual aggregate correction
func (r *Router) adjustStock(w http.ResponseWriter, req *http.Request) {
	var body adjustRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := r.svc.AdjustAggregateStock(req.Context(), body.command(actorID(req)))
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (r *Router) setSerializedStatus(w http.ResponseWriter, req *http.Request) {
	var body statusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	change, err := r.svc.SetSerializedItemStatus(req.Context(), inventory.StatusCommand{
		ItemUID: mux.Vars(req)["uid"],
		Status:  models.ItemStatus(body.Status),
		Notes:   body.Notes,
		ActorID: actorID(req),
	})
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, change)
}

func (r *Router) listSerialized(w http.ResponseWriter, req *http.Request) {
	filter, err := itemFilter(req.URL.Query())
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}

	page, err := r.svc.ListSerializedItems(req.Context(), filter)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (r *Router) getSerialized(w http.ResponseWriter, req *http.Request) {
	item, err := r.svc.GetItem(req.Context(), mux.Vars(req)["uid"])
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (r *Router) listMovements(w http.ResponseWriter, req *http.Request) {
	filter, err := movementFilter(req.URL.Query())
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}

	page, err := r.svc.ListMovements(req.Context(), filter)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// getProductInventory returns aggregate stock, status counts and recent movements
func (r *Router) getProductInventory(w http.ResponseWriter, req *http.Request) {
	id, err := parseUint("product id", mux.Vars(req)["id"])
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}

	details, err := r.svc.GetInventoryDetails(req.Context(), id)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

func (r *Router) reconcileProduct(w http.ResponseWriter, req *http.Request) {
	id, err := parseUint("product id", mux.Vars(req)["id"])
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}

	rec, err := r.svc.Reconcile(req.Context(), id)
	if err != nil {
		r.respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
