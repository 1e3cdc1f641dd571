package api

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/megabridge/withdrawal-prover/prover"
	"github.com/megabridge/withdrawal-prover/types"
)

var (
	hashPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

func parseHash(s string) (common.Hash, error) {
	if !hashPattern.MatchString(s) {
		return common.Hash{}, fmt.Errorf("invalid hash %q", s)
	}
	return common.HexToHash(s), nil
}

// handleWithdrawalParams runs the pipeline without submitting and returns
// the proveWithdrawalTransaction arguments.
func (s *Server) handleWithdrawalParams(w http.ResponseWriter, r *http.Request) {
	txHash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		ERROR(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.opts.Pipeline.Run(r.Context(), txHash, prover.RunOpts{DryRun: true})
	if err != nil {
		s.log.Info("Proof parameters unavailable", "txHash", txHash.Hex(), "error", err)
		ERROR(w, statusFor(err), err)
		return
	}

	params, err := types.NewProveParams(result)
	if err != nil {
		ERROR(w, http.StatusInternalServerError, err)
		return
	}
	JSON(w, http.StatusOK, params)
}

func (s *Server) handleWithdrawalStatus(w http.ResponseWriter, r *http.Request) {
	withdrawalHash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		ERROR(w, http.StatusBadRequest, err)
		return
	}

	var submitter common.Address
	if q := r.URL.Query().Get("submitter"); q != "" {
		if !addressPattern.MatchString(q) {
			ERROR(w, http.StatusBadRequest, fmt.Errorf("invalid submitter %q", q))
			return
		}
		submitter = common.HexToAddress(q)
	}

	status, err := s.opts.Status.WithdrawalStatus(r.Context(), withdrawalHash, submitter)
	if err != nil {
		ERROR(w, statusFor(err), err)
		return
	}
	JSON(w, http.StatusOK, status)
}
