// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/export"
	"github.com/rovshanmuradov/sonic-defi/internal/gas"
	"github.com/rovshanmuradov/sonic-defi/internal/marketplace"
	"github.com/rovshanmuradov/sonic-defi/internal/storage"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/models"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	ChainID uint64 `json:"chainId"`
	Network string `json:"network"`
	Time    string `json:"time"`
}

type balancesResponse struct {
	Address  string            `json:"address"`
	Balances map[string]string `json:"balances"`
}

type allowanceResponse struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

type listingResponse struct {
	NFT          string `json:"nft"`
	TokenID      string `json:"tokenId"`
	Seller       string `json:"seller"`
	Price        string `json:"price"`
	PaymentToken string `json:"paymentToken"`
	Active       bool   `json:"active"`
}

// poolView добавляет вычисляемую долю пользователя к снимку пула.
type poolView struct {
	types.LiquidityPool
	UserSharePercentage string `json:"userSharePercentage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidAddress),
		errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrUnknownToken),
		errors.Is(err, marketplace.ErrInvalidTokenID):
		return http.StatusBadRequest
	case errors.Is(err, marketplace.ErrUnsupportedOperation):
		return http.StatusNotFound
	case errors.Is(err, marketplace.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, types.ErrContractNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// requireParams returns the named query values or writes a 400.
func requireParams(w http.ResponseWriter, r *http.Request, names ...string) ([]string, bool) {
	q := r.URL.Query()
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = q.Get(name)
		if values[i] == "" {
			writeError(w, http.StatusBadRequest, "missing query parameter: "+name)
			return nil, false
		}
	}
	return values, true
}

func requireAddress(w http.ResponseWriter, value, field string) bool {
	if !address.IsValid(value) {
		writeError(w, http.StatusBadRequest, types.ErrInvalidAddress.Error()+": "+field)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		ChainID: s.d.Network.ChainID,
		Network: s.d.Network.Name,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTokens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Registry.All())
}

// handleToken resolves an id, symbol or address. Unknown addresses are
// imported from chain and added to the registry.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	tok, err := s.d.Registry.Lookup(ref)
	if err == nil {
		writeJSON(w, http.StatusOK, tok)
		return
	}
	if s.d.Importer == nil || !address.IsValid(ref) {
		s.fail(w, r, err)
		return
	}

	imported, err := s.d.Importer.Import(r.Context(), ref)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.d.Registry.Add(*imported); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imported)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParams(w, r, "in", "out", "amount")
	if !ok {
		return
	}
	q, err := s.d.Quotes.GetSwapQuote(r.Context(), p[0], p[1], p[2])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleSwapGas(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParams(w, r, "in", "out", "amount", "from")
	if !ok {
		return
	}
	if !requireAddress(w, p[3], "from") {
		return
	}
	est, err := s.d.Gas.EstimateGas(r.Context(), p[0], p[1], p[2], p[3])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// handleOperationGas prices token_approval and the marketplace operations.
func (s *Server) handleOperationGas(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "operation")
	if op == string(gas.OpTokenApproval) {
		s.handleApprovalGas(w, r)
		return
	}
	if s.d.NFTGas == nil {
		s.fail(w, r, marketplace.ErrNotConfigured)
		return
	}
	q := r.URL.Query()
	if !requireAddress(w, q.Get("from"), "from") {
		return
	}
	est, err := s.d.NFTGas.EstimateGas(r.Context(), marketplace.GasRequest{
		Operation:    op,
		NFT:          s.nftParam(r),
		TokenID:      q.Get("tokenId"),
		Price:        q.Get("price"),
		PaymentToken: q.Get("paymentToken"),
		From:         q.Get("from"),
		To:           q.Get("to"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) handleApprovalGas(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParams(w, r, "token", "spender", "amount", "from")
	if !ok {
		return
	}
	if !requireAddress(w, p[1], "spender") || !requireAddress(w, p[3], "from") {
		return
	}
	if s.d.ApprovalGas == nil {
		writeError(w, http.StatusNotFound, "token approval estimates are not served")
		return
	}
	tok, err := s.d.Registry.Lookup(p[0])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tok.IsNative() {
		writeError(w, http.StatusBadRequest, "native token needs no approval")
		return
	}
	if _, ok := types.ParsePositiveAmount(p[2]); !ok {
		s.fail(w, r, fmt.Errorf("%w: %q", types.ErrInvalidAmount, p[2]))
		return
	}
	amount, err := types.ParseUnits(p[2], tok.Decimals)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", types.ErrInvalidAmount, err))
		return
	}
	est := s.d.ApprovalGas.EstimateTokenApproval(r.Context(), tok.Address,
		common.HexToAddress(p[1]), amount, common.HexToAddress(p[3]))
	writeJSON(w, http.StatusOK, est)
}

// nftParam returns the nft query value or the configured collection.
func (s *Server) nftParam(r *http.Request) string {
	if nft := r.URL.Query().Get("nft"); nft != "" {
		return nft
	}
	return s.d.DefaultNFT
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "address")
	if !requireAddress(w, owner, "address") {
		return
	}
	balances, err := s.d.Balances.FetchBalances(r.Context(), owner, s.d.Registry.All())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balancesResponse{Address: address.Normalize(owner), Balances: balances})
}

// handleAllowance never fails on a read error: the coordinator already
// degrades to "0".
func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParams(w, r, "token", "owner", "spender")
	if !ok {
		return
	}
	if !requireAddress(w, p[1], "owner") {
		return
	}
	writeJSON(w, http.StatusOK, allowanceResponse{
		Token:     p[0],
		Owner:     p[1],
		Spender:   p[2],
		Allowance: s.d.Allowances.GetAllowance(r.Context(), p[0], p[1], p[2]),
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner != "" && !requireAddress(w, owner, "owner") {
		return
	}
	pools := s.d.Pools.FetchPools(r.Context(), owner, s.d.PoolSpecs)

	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		v := poolView{LiquidityPool: p}
		if p.UserLPBalance != "" {
			v.UserSharePercentage = p.UserSharePercentage().StringFixed(4)
		}
		views = append(views, v)
		s.snapshot(r, p)
	}
	writeJSON(w, http.StatusOK, views)
}

// snapshot пишет состояние пула в журнал, если он подключен.
func (s *Server) snapshot(r *http.Request, p types.LiquidityPool) {
	if s.d.Journal == nil {
		return
	}
	err := s.d.Journal.SavePoolSnapshot(r.Context(), &models.PoolSnapshot{
		PoolAddress: p.PoolAddress,
		Name:        p.Name,
		Token1:      p.Token1.ID,
		Token2:      p.Token2.ID,
		Reserve1:    p.Reserve1,
		Reserve2:    p.Reserve2,
		TotalSupply: p.TotalSupplyLP,
		TVL:         p.TotalLiquidityUSD,
	})
	if err != nil {
		s.logger.Warn("Failed to save pool snapshot", zap.String("pool", p.PoolAddress), zap.Error(err))
	}
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "address")
	if !requireAddress(w, wallet, "address") {
		return
	}
	if s.d.Journal == nil {
		writeJSON(w, http.StatusOK, []*models.Activity{})
		return
	}
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	list, err := s.d.Journal.ListActivity(r.Context(), wallet, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Activity{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleActivityExport отдает журнал кошелька файлом CSV или JSON.
func (s *Server) handleActivityExport(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "address")
	if !requireAddress(w, wallet, "address") {
		return
	}
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var list []*models.Activity
	if s.d.Journal != nil {
		list, err = s.d.Journal.ListActivity(r.Context(), wallet, maxExportRows, 0)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}

	contentType := "text/csv"
	if format == export.FormatJSON {
		contentType = "application/json"
	}
	filename := fmt.Sprintf("activity_%s_%s.%s",
		strings.ToLower(address.Normalize(wallet)), time.Now().UTC().Format("20060102_150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	_, err = s.exporter.Write(w, list, export.Options{
		Format:        format,
		Kind:          q.Get("kind"),
		Status:        q.Get("status"),
		SkipSimulated: q.Get("simulated") == "false",
	})
	if err != nil {
		s.logger.Error("Activity export failed", zap.String("wallet", wallet), zap.Error(err))
	}
}

func paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParams(w, r, "tokenId")
	if !ok {
		return
	}
	nft := s.nftParam(r)
	if nft == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter: nft")
		return
	}
	listing, err := s.d.Listings.GetListing(r.Context(), nft, p[0])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	price := "0"
	if listing.Price != nil {
		price = listing.Price.String()
	}
	writeJSON(w, http.StatusOK, listingResponse{
		NFT:          address.Normalize(nft),
		TokenID:      p[0],
		Seller:       listing.Seller.Hex(),
		Price:        price,
		PaymentToken: listing.PaymentToken.Hex(),
		Active:       listing.Active,
	})
}
