package api

import (
	"net/http"
	"strconv"

	"github.com/megabridge/withdrawal-prover/database/models"
)

func (s *Server) handleProofsGet(w http.ResponseWriter, r *http.Request) {
	// Get query parameters
	page, err := strconv.ParseInt(r.URL.Query().Get("page"), 10, 64)
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.ParseInt(r.URL.Query().Get("pageSize"), 10, 64)
	if err != nil || pageSize < 1 {
		pageSize = 10
	}

	filter := models.Filter{
		Status:         r.URL.Query().Get("status"),
		TxHash:         normalizeHash(r.URL.Query().Get("txHash")),
		WithdrawalHash: normalizeHash(r.URL.Query().Get("withdrawalHash")),
	}

	// Without a database there is no history to page through.
	if s.opts.Store == nil {
		JSON(w, http.StatusOK, &models.PaginatedResult{Items: []models.ProofRecord{}, Page: page, PageSize: pageSize})
		return
	}

	result, err := s.opts.Store.GetProofRecords(r.Context(), filter, page, pageSize)
	if err != nil {
		ERROR(w, http.StatusInternalServerError, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

// normalizeHash lowercases well-formed hashes to match stored records.
func normalizeHash(s string) string {
	h, err := parseHash(s)
	if err != nil {
		return s
	}
	return h.Hex()
}
