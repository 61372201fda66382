package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"financas/internal/core"
	"financas/internal/report"
	"financas/internal/services"
)

type snapshotResponse struct {
	Data               core.FinancialData `json:"data"`
	LastProcessedMonth string             `json:"lastProcessedMonth"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotResponse{
		Data:               s.ledger.Snapshot(),
		LastProcessedMonth: s.ledger.LastProcessedMonth(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, report.CalculateTotals(s.ledger.Snapshot(), s.ledger.Now()))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Report())
}

// Income

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var in core.IncomeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	inc, err := s.ledger.AddIncome(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpAddIncome, inc.ID)
	writeJSON(w, http.StatusCreated, inc)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in core.IncomeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	inc, err := s.ledger.UpdateIncome(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpUpdateIncome, id)
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.ledger.DeleteIncome(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpDeleteIncome, id)
	w.WriteHeader(http.StatusNoContent)
}

// Fixed expenses

func (s *Server) handleCreateFixedExpense(w http.ResponseWriter, r *http.Request) {
	var in core.FixedExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.ledger.AddFixedExpense(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpAddFixedExpense, e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateFixedExpense(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in core.FixedExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.ledger.UpdateFixedExpense(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpUpdateFixedExpense, id)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteFixedExpense(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.ledger.DeleteFixedExpense(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpDeleteFixedExpense, id)
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleFixedExpense flips the paid flag for the current month.
func (s *Server) handleToggleFixedExpense(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	e, err := s.ledger.ToggleFixedExpensePaid(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpToggleFixedExpense, id)
	writeJSON(w, http.StatusOK, e)
}

// Cards

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var in core.CardInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.AddCard(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpAddCard, c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["cardID"]
	var in core.CardInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.UpdateCard(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpUpdateCard, id)
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteCard removes the card and all of its purchases.
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["cardID"]
	if err := s.ledger.DeleteCard(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpDeleteCard, id)
	w.WriteHeader(http.StatusNoContent)
}

// Purchases

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	cardID := mux.Vars(r)["cardID"]
	var in core.PurchaseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.ledger.AddPurchase(r.Context(), cardID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpAddPurchase, p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePurchase(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var in core.PurchaseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.ledger.UpdatePurchase(r.Context(), vars["cardID"], vars["purchaseID"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpUpdatePurchase, p.ID)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePurchase(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.ledger.DeletePurchase(r.Context(), vars["cardID"], vars["purchaseID"]); err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpDeletePurchase, vars["purchaseID"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleInstallment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := s.ledger.ToggleInstallmentPaid(r.Context(), vars["cardID"], vars["purchaseID"], core.Period(vars["period"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logs.LogMutation(r.Context(), services.OpToggleInstallment, p.ID)
	writeJSON(w, http.StatusOK, p)
}
