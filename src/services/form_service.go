// backend/src/services/form_service.go
package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/username/budgetwise/backend/src/logger"
	"github.com/username/budgetwise/backend/src/models"
	"github.com/username/budgetwise/backend/src/security/validation"
	"github.com/username/budgetwise/backend/src/store"
)

// Draft is the in-progress transaction-entry form state. All fields hold the
// raw user input; parsing happens on submit.
type Draft struct {
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	CustomCategory string `json:"customCategory"`
	Date           string `json:"date"`
}

// FieldErrors maps field names to the first applicable validation message.
// The reserved "submit" key carries write failures from the store.
type FieldErrors map[string]string

// txPayload is the mutable document body sent to the store. Identity, owner
// and creation time live in the record envelope and are never part of it.
type txPayload struct {
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Title    string  `json:"title"`
	Category string  `json:"category"`
	Date     string  `json:"date"`
}

// FormController owns one user's draft transaction, its per-field error map,
// and the submission lock. States: Idle -> Validating (synchronous) ->
// Submitting -> Idle; a validation failure never leaves Idle.
type FormController struct {
	store       store.DocumentStore
	ownerID     string
	unlockDelay time.Duration
	now         func() time.Time

	mu         sync.Mutex
	draft      Draft
	errors     FieldErrors
	editID     string
	submitting bool
}

// NewFormController creates a controller for one owner. unlockDelay is the
// fixed window the submission lock stays held after a write settles; it
// suppresses duplicate writes from rapid repeated submits.
func NewFormController(st store.DocumentStore, ownerID string, unlockDelay time.Duration) *FormController {
	c := &FormController{
		store:       st,
		ownerID:     ownerID,
		unlockDelay: unlockDelay,
		now:         time.Now,
		errors:      FieldErrors{},
	}
	c.draft = c.defaultDraft()
	return c
}

func (c *FormController) defaultDraft() Draft {
	return Draft{
		Type: models.TypeExpense,
		Date: c.now().Format(validation.DateLayout),
	}
}

// Draft returns the current draft state.
func (c *FormController) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Errors returns a copy of the current error map.
func (c *FormController) Errors() FieldErrors {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(FieldErrors, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

// EditID returns the id of the record being edited, or "".
func (c *FormController) EditID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editID
}

// OnFieldChange updates one draft field. An existing error for that field is
// cleared; nothing is revalidated until the next submit.
func (c *FormController) OnFieldChange(field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch field {
	case "type":
		c.draft.Type = value
	case "amount":
		c.draft.Amount = value
	case "title":
		c.draft.Title = value
	case "date":
		c.draft.Date = value
	case "customCategory":
		// Typing in the custom sub-input is also the category value.
		c.draft.CustomCategory = value
		c.draft.Category = value
		delete(c.errors, "category")
	default:
		return
	}
	delete(c.errors, field)
}

// OnCategorySelect reacts to the category dropdown. Selecting "custom" clears
// the structured category so the custom sub-input takes over; any other value
// sets the category and discards custom text.
func (c *FormController) OnCategorySelect(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == "custom" {
		c.draft.Category = ""
	} else {
		c.draft.Category = value
		c.draft.CustomCategory = ""
	}
	delete(c.errors, "category")
}

// BeginEdit loads a record into the draft and arms edit mode.
func (c *FormController) BeginEdit(t models.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	date := t.Date
	if date == "" && !t.CreatedAt.IsZero() {
		date = t.CreatedAt.Format(validation.DateLayout)
	}

	c.editID = t.ID
	c.draft = Draft{
		Type:     t.Type,
		Amount:   strconv.FormatFloat(t.Amount, 'f', -1, 64),
		Title:    t.Title,
		Category: t.Category,
		Date:     date,
	}
	if models.ParseCategory(t.Category).Custom {
		c.draft.CustomCategory = t.Category
	}
	c.errors = FieldErrors{}
}

// CancelEdit leaves edit mode and resets the draft to defaults.
func (c *FormController) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editID = ""
	c.draft = c.defaultDraft()
	c.errors = FieldErrors{}
}

// Submit validates the draft and issues a create (or an update when editing).
// On validation failure the error map is returned and no write happens. A
// call while a previous submission is still locked is dropped, not deferred.
// Returns the written transaction, or nil with the error map.
func (c *FormController) Submit(ctx context.Context) (*models.Transaction, FieldErrors) {
	c.mu.Lock()

	if c.submitting {
		c.mu.Unlock()
		logger.L.Debug("Dropping duplicate submit while locked", "ownerID", c.ownerID)
		return nil, nil
	}

	draft := c.draft
	editID := c.editID

	errs := validateDraft(draft)
	if len(errs) > 0 {
		c.errors = errs
		c.mu.Unlock()
		return nil, copyErrors(errs)
	}

	c.errors = FieldErrors{}
	c.submitting = true
	c.mu.Unlock()

	amount, _ := validation.ValidateAmount(draft.Amount)
	payload := txPayload{
		Type:     draft.Type,
		Amount:   amount,
		Title:    validation.StripUnprintable(strings.TrimSpace(draft.Title)),
		Category: draft.Category,
		Date:     strings.TrimSpace(draft.Date),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Marshal of a plain struct cannot realistically fail; treat it like
		// a write failure if it ever does.
		c.settle(FieldErrors{"submit": err.Error()})
		return nil, FieldErrors{"submit": err.Error()}
	}

	tx := models.Transaction{
		Type:     payload.Type,
		Amount:   payload.Amount,
		Title:    payload.Title,
		Category: payload.Category,
		Date:     payload.Date,
		OwnerID:  c.ownerID,
	}

	if editID != "" {
		rec, getErr := c.store.GetOne(ctx, TransactionsCollection, editID)
		if getErr != nil {
			msg := storeErrorMessage(getErr)
			c.settle(FieldErrors{"submit": msg})
			return nil, FieldErrors{"submit": msg}
		}
		if updErr := c.store.Update(ctx, TransactionsCollection, editID, data); updErr != nil {
			msg := storeErrorMessage(updErr)
			c.settle(FieldErrors{"submit": msg})
			return nil, FieldErrors{"submit": msg}
		}
		tx.ID = editID
		tx.OwnerID = rec.OwnerID
		tx.CreatedAt = rec.CreatedAt
	} else {
		tx.CreatedAt = c.now()
		id, createErr := c.store.Create(ctx, TransactionsCollection, c.ownerID, data)
		if createErr != nil {
			msg := storeErrorMessage(createErr)
			c.settle(FieldErrors{"submit": msg})
			return nil, FieldErrors{"submit": msg}
		}
		tx.ID = id
	}

	c.settleSuccess()
	return &tx, nil
}

// validateDraft runs all field validators and accumulates the first
// applicable message per field.
func validateDraft(d Draft) FieldErrors {
	errs := FieldErrors{}
	if _, err := validation.ValidateAmount(d.Amount); err != nil {
		errs["amount"] = err.Error()
	}
	if err := validation.ValidateTitle(d.Title); err != nil {
		errs["title"] = err.Error()
	}
	if _, err := validation.ValidateDate(d.Date); err != nil {
		errs["date"] = err.Error()
	}
	if err := validation.ValidateCategory(d.Category); err != nil {
		errs["category"] = err.Error()
	}
	return errs
}

// settleSuccess resets the form after a successful write and schedules the
// lock release.
func (c *FormController) settleSuccess() {
	c.mu.Lock()
	c.editID = ""
	c.draft = c.defaultDraft()
	c.errors = FieldErrors{}
	c.mu.Unlock()
	c.scheduleUnlock()
}

// settle records a write failure. The draft survives so the user can retry;
// the lock still releases only after the delay.
func (c *FormController) settle(errs FieldErrors) {
	c.mu.Lock()
	c.errors = errs
	c.mu.Unlock()
	c.scheduleUnlock()
}

func (c *FormController) scheduleUnlock() {
	if c.unlockDelay <= 0 {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
		return
	}
	time.AfterFunc(c.unlockDelay, func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	})
}

func copyErrors(errs FieldErrors) FieldErrors {
	out := make(FieldErrors, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}

// storeErrorMessage converts a store failure into the single top-level
// message shown above the form.
func storeErrorMessage(err error) string {
	switch store.KindOf(err) {
	case store.KindPermissionDenied:
		return "You do not have permission to save this transaction."
	case store.KindQuotaExceeded:
		return "Storage quota exceeded. Please try again later."
	case store.KindNotFound:
		return "This transaction no longer exists."
	case store.KindConflict:
		return "This transaction was changed elsewhere. Please retry."
	case store.KindInvalidArgument:
		return "The transaction could not be saved as entered."
	default:
		return "Failed to save transaction. Please try again."
	}
}
