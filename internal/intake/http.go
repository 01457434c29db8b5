package intake

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// wireOrderRequest is the JSON shape of OrderRequest (spec.md §6.1).
type wireOrderRequest struct {
	SrcChain     string           `json:"src_chain"`
	DstChain     string           `json:"dst_chain"`
	Maker        string           `json:"maker"`
	Taker        string           `json:"taker"`
	MakerAsset   string           `json:"maker_asset"`
	TakerAsset   string           `json:"taker_asset"`
	MakingAmount string           `json:"making_amount"`
	TakingAmount string           `json:"taking_amount"`
	Hashlock     string           `json:"hashlock,omitempty"`
	Timelocks    wireTimelocksReq `json:"timelocks"`
}

type wireTimelocksReq struct {
	SrcWithdrawal         int64 `json:"src_withdrawal"`
	SrcPublicWithdrawal   int64 `json:"src_public_withdrawal"`
	SrcCancellation       int64 `json:"src_cancellation"`
	SrcPublicCancellation int64 `json:"src_public_cancellation"`
	DstWithdrawal         int64 `json:"dst_withdrawal"`
	DstPublicWithdrawal   int64 `json:"dst_public_withdrawal"`
	DstCancellation       int64 `json:"dst_cancellation"`
	DstPublicCancellation int64 `json:"dst_public_cancellation"`
}

func (w wireOrderRequest) toOrderRequest() OrderRequest {
	return OrderRequest{
		SrcChain:     w.SrcChain,
		DstChain:     w.DstChain,
		Maker:        w.Maker,
		Taker:        w.Taker,
		MakerAsset:   w.MakerAsset,
		TakerAsset:   w.TakerAsset,
		MakingAmount: w.MakingAmount,
		TakingAmount: w.TakingAmount,
		Hashlock:     w.Hashlock,
		Timelocks: TimelocksRequest{
			SrcWithdrawal:         w.Timelocks.SrcWithdrawal,
			SrcPublicWithdrawal:   w.Timelocks.SrcPublicWithdrawal,
			SrcCancellation:       w.Timelocks.SrcCancellation,
			SrcPublicCancellation: w.Timelocks.SrcPublicCancellation,
			DstWithdrawal:         w.Timelocks.DstWithdrawal,
			DstPublicWithdrawal:   w.Timelocks.DstPublicWithdrawal,
			DstCancellation:       w.Timelocks.DstCancellation,
			DstPublicCancellation: w.Timelocks.DstPublicCancellation,
		},
	}
}

type submitResponse struct {
	OrderHash string `json:"order_hash"`
	Status    string `json:"status"`
}

type statusResponse struct {
	OrderHash        string `json:"order_hash"`
	SrcChain         string `json:"src_chain"`
	DstChain         string `json:"dst_chain"`
	Status           string `json:"status"`
	SrcEscrowAddress string `json:"src_escrow_address,omitempty"`
	DstEscrowAddress string `json:"dst_escrow_address,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the order-intake HTTP surface (spec.md §6.1): a
// thin transport over Service, grounded on stellar-query-api/go's
// gorilla/mux handler style.
func NewRouter(svc *Service, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/orders", svc.handleSubmit(logger)).Methods(http.MethodPost)
	r.HandleFunc("/orders/{order_hash}", svc.handleStatus(logger)).Methods(http.MethodGet)
	return r
}

func (s *Service) handleSubmit(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var wire wireOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
			respondError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		result, err := s.Submit(r.Context(), wire.toOrderRequest())
		if err != nil {
			logger.Warn("order submission rejected", zap.Error(err))
			respondError(w, statusForErr(err), err.Error())
			return
		}

		respondJSON(w, http.StatusAccepted, submitResponse{OrderHash: result.OrderHash, Status: result.Status})
	}
}

func (s *Service) handleStatus(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderHash, err := chainmodel.ParseOrderHash(mux.Vars(r)["order_hash"])
		if err != nil {
			respondError(w, http.StatusBadRequest, "malformed order_hash")
			return
		}

		sw, err := s.Status(r.Context(), orderHash)
		if err != nil {
			logger.Warn("status lookup failed", zap.Error(err))
			respondError(w, http.StatusNotFound, "order not found")
			return
		}

		respondJSON(w, http.StatusOK, statusResponse{
			OrderHash:        sw.OrderHash.String(),
			SrcChain:         string(sw.SrcChain),
			DstChain:         string(sw.DstChain),
			Status:           sw.Status.String(),
			SrcEscrowAddress: sw.SrcEscrowAddress,
			DstEscrowAddress: sw.DstEscrowAddress,
			LastError:        sw.LastError,
		})
	}
}

func statusForErr(err error) int {
	switch {
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrUnsupportedChain):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
