// backend/src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"

	"github.com/username/budgetwise/backend/src/logger"
	"github.com/username/budgetwise/backend/src/models"
	"github.com/username/budgetwise/backend/src/security/validation"
	"github.com/username/budgetwise/backend/src/services"
	"github.com/username/budgetwise/backend/src/store"
)

type TransactionHandler struct {
	store       store.DocumentStore
	forms       *cache.Cache
	unlockDelay time.Duration
}

func NewTransactionHandler(documentStore store.DocumentStore, unlockDelay time.Duration) *TransactionHandler {
	return &TransactionHandler{
		store:       documentStore,
		forms:       cache.New(30*time.Minute, time.Hour),
		unlockDelay: unlockDelay,
	}
}

// formFor returns the per-user form controller, creating it on first use.
// One controller per user keeps the submission lock scoped to that user.
func (h *TransactionHandler) formFor(userID string) *services.FormController {
	if cached, ok := h.forms.Get(userID); ok {
		return cached.(*services.FormController)
	}
	controller := services.NewFormController(h.store, userID, h.unlockDelay)
	h.forms.Set(userID, controller, cache.DefaultExpiration)
	return controller
}

func (h *TransactionHandler) loadTransactions(r *http.Request, ownerID string) ([]models.Transaction, error) {
	snap, err := h.store.List(r.Context(), services.TransactionsCollection, store.Filter{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	return services.DecodeSnapshot(snap), nil
}

type draftRequest struct {
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	CustomCategory string `json:"customCategory"`
	Date           string `json:"date"`
}

func applyDraft(controller *services.FormController, req draftRequest) {
	controller.OnFieldChange("type", req.Type)
	controller.OnFieldChange("amount", req.Amount)
	controller.OnFieldChange("title", req.Title)
	controller.OnFieldChange("date", req.Date)
	if req.CustomCategory != "" {
		controller.OnCategorySelect("custom")
		controller.OnFieldChange("customCategory", req.CustomCategory)
	} else {
		controller.OnCategorySelect(req.Category)
	}
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())

	records, err := h.loadTransactions(r, sess.UserID)
	if err != nil {
		logger.L.Error("Failed to list transactions", "userID", sess.UserID, "error", err)
		sendJSONError(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		category = "All"
	}
	records = services.FilterByCategory(records, category)
	records = services.SortedByRecency(records)

	if records == nil {
		records = []models.Transaction{}
	}
	sendJSON(w, http.StatusOK, records)
}

func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())

	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	controller := h.formFor(sess.UserID)
	controller.CancelEdit()
	applyDraft(controller, req)

	tx, errs := controller.Submit(r.Context())
	if tx == nil && errs == nil {
		// A previous submission is still settling; this one was dropped.
		sendJSONError(w, "Submission already in progress", http.StatusTooManyRequests)
		return
	}
	if errs != nil {
		if msg, ok := errs["submit"]; ok {
			sendJSON(w, http.StatusBadGateway, map[string]interface{}{"errors": errs, "error": msg})
			return
		}
		sendJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}

	sendJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := h.store.GetOne(r.Context(), services.TransactionsCollection, id)
	if err != nil {
		if store.KindOf(err) == store.KindNotFound {
			sendJSONError(w, "Transaction not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to fetch transaction for update", "id", id, "error", err)
		sendJSONError(w, "Failed to load transaction", http.StatusInternalServerError)
		return
	}
	if rec.OwnerID != sess.UserID {
		sendJSONError(w, "Transaction not found", http.StatusNotFound)
		return
	}

	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	existing := services.DecodeSnapshot(store.Snapshot{*rec})
	if len(existing) == 0 {
		sendJSONError(w, "Transaction not found", http.StatusNotFound)
		return
	}

	controller := h.formFor(sess.UserID)
	controller.BeginEdit(existing[0])
	applyDraft(controller, req)

	tx, errs := controller.Submit(r.Context())
	if tx == nil && errs == nil {
		sendJSONError(w, "Submission already in progress", http.StatusTooManyRequests)
		return
	}
	if errs != nil {
		if msg, ok := errs["submit"]; ok {
			sendJSON(w, http.StatusBadGateway, map[string]interface{}{"errors": errs, "error": msg})
			return
		}
		sendJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}

	sendJSON(w, http.StatusOK, tx)
}

// HandleDeleteTransaction removes a record. Deletes are not serialized
// through the submission lock; they may run alongside an in-flight save.
func (h *TransactionHandler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := h.store.GetOne(r.Context(), services.TransactionsCollection, id)
	if err != nil {
		if store.KindOf(err) == store.KindNotFound {
			// Deleting an absent record is a no-op.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.L.Error("Failed to fetch transaction for delete", "id", id, "error", err)
		sendJSONError(w, "Failed to delete transaction", http.StatusInternalServerError)
		return
	}
	if rec.OwnerID != sess.UserID {
		sendJSONError(w, "Transaction not found", http.StatusNotFound)
		return
	}

	if err := h.store.Delete(r.Context(), services.TransactionsCollection, id); err != nil {
		logger.L.Error("Failed to delete transaction", "id", id, "error", err)
		sendJSONError(w, "Failed to delete transaction", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) HandleGetTotals(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())

	records, err := h.loadTransactions(r, sess.UserID)
	if err != nil {
		logger.L.Error("Failed to load transactions for totals", "userID", sess.UserID, "error", err)
		sendJSONError(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, services.ComputeTotals(records))
}

func (h *TransactionHandler) HandleGetCategories(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())

	records, err := h.loadTransactions(r, sess.UserID)
	if err != nil {
		logger.L.Error("Failed to load transactions for categories", "userID", sess.UserID, "error", err)
		sendJSONError(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, services.DistinctCategories(records))
}

// HandleExportTransactions streams the user's transactions as a CSV
// download. Text fields are neutralized against spreadsheet formula
// injection at this boundary only; the stored values are untouched.
func (h *TransactionHandler) HandleExportTransactions(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())

	records, err := h.loadTransactions(r, sess.UserID)
	if err != nil {
		logger.L.Error("Failed to load transactions for export", "userID", sess.UserID, "error", err)
		sendJSONError(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		sendJSONError(w, "No transactions to export.", http.StatusNotFound)
		return
	}

	records = services.SortedByRecency(records)
	for i := range records {
		records[i].Title = validation.SanitizeForFormulaInjection(records[i].Title)
		records[i].Category = validation.SanitizeForFormulaInjection(records[i].Category)
	}

	content := services.ToCSV(records)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", services.ExportFilename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

// HandleStreamTransactions pushes full snapshots of the user's transactions
// over server-sent events. Each event replaces the client's working set
// entirely. The subscription is released when the client disconnects.
func (h *TransactionHandler) HandleStreamTransactions(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := h.store.Subscribe(services.TransactionsCollection, store.Filter{OwnerID: sess.UserID})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			records := services.SortedByRecency(services.DecodeSnapshot(snap))
			if records == nil {
				records = []models.Transaction{}
			}
			payload, err := json.Marshal(records)
			if err != nil {
				logger.L.Error("Failed to encode transaction snapshot", "userID", sess.UserID, "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
