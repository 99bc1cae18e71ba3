package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"bridgeui/pkg/chains"
	"bridgeui/pkg/models"
	"bridgeui/pkg/send"
	"bridgeui/pkg/utils"
	"bridgeui/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) status() statusView {
	conn := s.watcher.Connection()
	chainID := s.global.CurrentChainID()
	view := statusView{
		Connection:     newConnectionView(conn, s.registry),
		CurrentChainID: chainID,
		CurrentAccount: addressOrEmpty(s.global.CurrentAccount()),
		Send:           newSendView(s.sender.Status()),
	}
	if price := s.watcher.GetGasPrice(chainID); price != nil {
		view.GasPriceGwei = utils.WeiToGwei(price)
	}
	if f, ok := s.watcher.LastQueryError(); ok {
		view.QueryError = f.Err.Error()
	}
	return view
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	var out []chainView
	for _, id := range s.registry.IDs() {
		meta, err := s.registry.Lookup(id)
		if err != nil {
			continue
		}
		out = append(out, newChainView(meta))
	}
	writeJSON(w, http.StatusOK, out)
}

// accountParams reads the {chainID}/{address} path parameters. It writes the
// error response itself and reports whether the handler should go on.
func (s *Server) accountParams(w http.ResponseWriter, r *http.Request) (uint64, common.Address, bool) {
	chainID, err := strconv.ParseUint(chi.URLParam(r, "chainID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid chain id"))
		return 0, common.Address{}, false
	}
	if !s.registry.IsSupported(chainID) {
		writeError(w, http.StatusNotFound, &chains.UnsupportedChainError{ChainID: chainID})
		return 0, common.Address{}, false
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, errors.New("invalid address"))
		return 0, common.Address{}, false
	}
	return chainID, common.HexToAddress(raw), true
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	chainID, account, ok := s.accountParams(w, r)
	if !ok {
		return
	}

	view := accountView{ChainID: chainID, Account: account.Hex(), Balances: map[string]balanceView{}}
	for token, amount := range s.global.Balances(chainID, account) {
		bv := balanceView{Raw: amount.String()}
		if coin, err := s.registry.Coin(chainID, token); err == nil {
			bv.Symbol = coin.Symbol
			bv.Formatted = utils.FormatUnits(amount, int32(coin.Decimals), 6)
		}
		view.Balances[token.Hex()] = bv
	}
	for _, tx := range s.global.Transactions(chainID, account) {
		view.Transactions = append(view.Transactions, newTxView(tx))
	}
	writeJSON(w, http.StatusOK, view)
}

// handleNativeBalance reads the native balance straight from the chain,
// bypassing the store.
func (s *Server) handleNativeBalance(w http.ResponseWriter, r *http.Request) {
	chainID, account, ok := s.accountParams(w, r)
	if !ok {
		return
	}
	meta, _ := s.registry.Lookup(chainID)

	amount, err := s.opts.Native.FetchNativeBalance(r.Context(), chainID, account)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{
		Symbol:    meta.NativeCurrency.Symbol,
		Raw:       amount.String(),
		Formatted: utils.FormatUnits(amount, int32(meta.NativeCurrency.Decimals), 6),
	})
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
}

// handleSend starts a send from the connected account. Amount is given in
// token units, e.g. "1.5".
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	conn := s.watcher.Connection()
	if conn.Signer == nil {
		writeError(w, http.StatusConflict, send.ErrNoSigner)
		return
	}
	chainID := conn.Signer.ChainID()

	args, err := s.parseSendRequest(chainID, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := s.sender.SendAsync(s.ctx, conn.Signer, args)
	Logger.Info().Str("send_id", id).Uint64("chain_id", chainID).Str("token", args.Token.Hex()).Msg("Send requested over API")
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) parseSendRequest(chainID uint64, req sendRequest) (models.SendArgs, error) {
	var args models.SendArgs
	if req.Recipient != "" {
		if !common.IsHexAddress(req.Recipient) {
			return args, errors.New("invalid recipient")
		}
		args.Recipient = common.HexToAddress(req.Recipient)
	}
	if req.Token != "" && !common.IsHexAddress(req.Token) {
		return args, errors.New("invalid token")
	}
	args.Token = common.HexToAddress(req.Token)

	coin, err := s.registry.Coin(chainID, args.Token)
	if err != nil {
		return args, err
	}
	amount, err := utils.ParseUnits(req.Amount, int32(coin.Decimals))
	if err != nil {
		return args, err
	}
	if amount.Sign() <= 0 {
		return args, send.ErrInvalidAmount
	}
	args.Amount = amount
	return args, nil
}

func (s *Server) handleSendStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusOK, newSendView(s.sender.Status()))
		return
	}
	st, ok := s.sender.StatusOf(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown send id"))
		return
	}
	writeJSON(w, http.StatusOK, newSendView(st))
}

type switchRequest struct {
	ChainID uint64 `json:"chain_id"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChainID == 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.SwitchTimeout)
	defer cancel()

	err := s.switcher(ctx, req.ChainID)
	var unsupported *chains.UnsupportedChainError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]uint64{"chain_id": req.ChainID})
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, wallet.ErrUserRejected):
		writeError(w, http.StatusForbidden, err)
	default:
		Logger.Warn().Err(err).Uint64("chain_id", req.ChainID).Msg("Chain switch failed")
		writeError(w, http.StatusBadGateway, err)
	}
}
