// Package app implements the ABCI state machine: transaction admission,
// deterministic block execution over the storage overlays, and the query
// surface. One App instance serves the consensus, mempool and query
// connections; the block pipeline is single-threaded by the ABCI
// connection model, queries read the committed store concurrently.
package app

import (
	"fmt"
	"sync"

	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/ordsys/sequencer/accounts"
	"github.com/ordsys/sequencer/codec"
	"github.com/ordsys/sequencer/fees"
	"github.com/ordsys/sequencer/market"
	"github.com/ordsys/sequencer/orderbook"
	"github.com/ordsys/sequencer/storage"
	"github.com/ordsys/sequencer/types"
)

const (
	appName    = "sequencer"
	appVersion = "0.1.0"

	// AppVersion is the protocol version reported over ABCI.
	AppVersion uint64 = 1
)

// App is the sequencer state machine.
type App struct {
	abci.BaseApplication

	logger  log.Logger
	store   *storage.Store
	metrics *Metrics

	accounts accounts.Keeper
	markets  market.Registry
	fees     fees.Keeper
	engine   orderbook.Engine

	// Block in progress. Set by BeginBlock, folded into the store by
	// Commit. Nil between blocks.
	block       *storage.Overlay
	blockHeight uint64
	txIndex     int64

	// Mempool view. Nonces advance here as CheckTx admits transactions so
	// an account can queue several transactions per block; rebuilt from
	// the committed store on every Commit. checkMtx guards it: CheckTx
	// writes on the mempool connection, Commit swaps it on the consensus
	// connection, and the pending-nonce query reads it on the query
	// connection.
	checkMtx   sync.Mutex
	checkState *storage.Overlay
}

var _ abci.Application = (*App)(nil)

// New builds the application on top of an opened store.
func New(store *storage.Store, logger log.Logger, metrics *Metrics) *App {
	accts := accounts.NewKeeper()
	return &App{
		logger:     logger,
		store:      store,
		metrics:    metrics,
		accounts:   accts,
		markets:    market.NewRegistry(accts),
		fees:       fees.NewKeeper(accts),
		engine:     orderbook.NewEngine(accts),
		checkState: store.NewOverlay(),
	}
}

// Info reports the committed height and app hash so the node can detect
// whether replay is needed.
func (a *App) Info(req abci.RequestInfo) abci.ResponseInfo {
	return abci.ResponseInfo{
		Data:             appName,
		Version:          appVersion,
		AppVersion:       AppVersion,
		LastBlockHeight:  int64(a.store.Version()),
		LastBlockAppHash: a.store.RootHash(),
	}
}

// InitChain applies the genesis document and commits it as height 0.
func (a *App) InitChain(req abci.RequestInitChain) abci.ResponseInitChain {
	gs := DefaultGenesis(req.ChainId)
	if len(req.AppStateBytes) > 0 {
		loaded, err := parseGenesis(req.AppStateBytes)
		if err != nil {
			panic(fmt.Sprintf("init chain: %v", err))
		}
		gs = loaded
	}
	if gs.ChainID != req.ChainId {
		panic(fmt.Sprintf("init chain: genesis chain id %q does not match consensus chain id %q", gs.ChainID, req.ChainId))
	}
	overlay := a.store.NewOverlay()
	if err := a.applyGenesis(overlay, gs); err != nil {
		panic(fmt.Sprintf("init chain: %v", err))
	}
	root, err := a.store.Commit(overlay, 0)
	if err != nil {
		panic(fmt.Sprintf("init chain commit: %v", err))
	}
	a.checkMtx.Lock()
	a.checkState = a.store.NewOverlay()
	a.checkMtx.Unlock()
	a.logger.Info("chain initialized", "chain_id", gs.ChainID, "app_hash", fmt.Sprintf("%X", root))
	return abci.ResponseInitChain{AppHash: root}
}

// CheckTx admits transactions into the mempool: wire decode, signature,
// chain id, nonce sequencing against the mempool view, and fee
// affordability. It never executes actions.
func (a *App) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	a.checkMtx.Lock()
	defer a.checkMtx.Unlock()

	tx, ctx, err := a.validateTx(a.checkState, req.Tx)
	if err != nil {
		return abci.ResponseCheckTx{Code: codeForErr(err), Log: err.Error()}
	}
	if err := a.checkFees(a.checkState, ctx.signer, tx.Body.Actions); err != nil {
		return abci.ResponseCheckTx{Code: codeForErr(err), Log: err.Error()}
	}
	if req.Type == abci.CheckTxType_New {
		a.accounts.SetNonce(a.checkState, ctx.signer, ctx.nonce+1)
	}
	return abci.ResponseCheckTx{Code: CodeOK}
}

// BeginBlock opens the block overlay.
func (a *App) BeginBlock(req abci.RequestBeginBlock) abci.ResponseBeginBlock {
	a.block = a.store.NewOverlay()
	a.blockHeight = uint64(req.Header.Height)
	a.txIndex = 0
	return abci.ResponseBeginBlock{}
}

// DeliverTx executes one transaction against the block overlay. A
// malformed or misordered transaction changes no state; a well-formed
// transaction always bumps the signer's nonce, even when its actions
// fail.
func (a *App) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	if a.block == nil {
		panic("deliver tx outside a block")
	}
	idx := a.txIndex
	a.txIndex++
	a.metrics.TxsDelivered.Add(1)

	tx, ctx, err := a.validateTx(a.block, req.Tx)
	if err != nil {
		a.logger.Debug("tx rejected", "height", a.blockHeight, "tx_index", idx, "err", err)
		return abci.ResponseDeliverTx{Code: codeForErr(err), Log: err.Error()}
	}
	ctx.height = a.blockHeight
	ctx.txIndex = idx

	code, events, err := a.executeTx(a.block, tx, ctx)
	if err != nil {
		// Internal failure of the pipeline itself, not a user error.
		panic(fmt.Sprintf("execute tx at height %d index %d: %v", a.blockHeight, idx, err))
	}
	resp := abci.ResponseDeliverTx{Code: code, Events: events}
	if code != CodeOK {
		resp.Log = "transaction rolled back"
	}
	return resp
}

// EndBlock has no validator-set or consensus-param changes to make.
func (a *App) EndBlock(req abci.RequestEndBlock) abci.ResponseEndBlock {
	return abci.ResponseEndBlock{}
}

// Commit folds the block overlay into the store and returns the new app
// hash. The mempool view is rebuilt from the committed state.
func (a *App) Commit() abci.ResponseCommit {
	if a.block == nil {
		panic("commit outside a block")
	}
	root, err := a.store.Commit(a.block, a.blockHeight)
	if err != nil {
		panic(fmt.Sprintf("commit at height %d: %v", a.blockHeight, err))
	}
	a.block = nil
	a.checkMtx.Lock()
	a.checkState = a.store.NewOverlay()
	a.checkMtx.Unlock()
	a.metrics.CommittedHeight.Set(float64(a.blockHeight))
	a.metrics.OrdersResting.Set(a.restingCount())
	a.logger.Info("committed block", "height", a.blockHeight, "app_hash", fmt.Sprintf("%X", root))
	return abci.ResponseCommit{Data: root}
}

// validateTx runs the stateless and sequencing checks shared by CheckTx
// and DeliverTx.
func (a *App) validateTx(state storage.ReadState, raw []byte) (types.Transaction, txContext, error) {
	tx, bodyBytes, err := codec.DecodeTransaction(raw)
	if err != nil {
		return types.Transaction{}, txContext{}, err
	}
	if err := tx.ValidateBasic(); err != nil {
		return types.Transaction{}, txContext{}, err
	}
	chainID, _, _, _, err := a.chainParams(state)
	if err != nil {
		return types.Transaction{}, txContext{}, err
	}
	if tx.Body.Params.ChainID != chainID {
		return types.Transaction{}, txContext{}, fmt.Errorf("%w: transaction chain id %q, chain is %q",
			types.ErrAuth, tx.Body.Params.ChainID, chainID)
	}
	if err := tx.Verify(bodyBytes); err != nil {
		return types.Transaction{}, txContext{}, err
	}
	signer := tx.Signer()
	expected, err := a.accounts.Nonce(state, signer)
	if err != nil {
		return types.Transaction{}, txContext{}, err
	}
	if tx.Body.Params.Nonce != expected {
		return types.Transaction{}, txContext{}, fmt.Errorf("%w: got %d, expected %d",
			types.ErrNonce, tx.Body.Params.Nonce, expected)
	}
	return tx, txContext{signer: signer, nonce: expected}, nil
}

// checkFees verifies the signer can afford the scheduled fees of every
// action, per fee asset, without executing anything.
func (a *App) checkFees(state storage.ReadState, signer types.Address, actions []types.Action) error {
	needed := make(map[string]types.Uint128)
	var order []string
	for _, action := range actions {
		asset := feeAssetOf(action)
		if asset == "" {
			continue
		}
		entry, err := a.fees.Schedule(state, action.Tag())
		if err != nil {
			return err
		}
		if entry.Asset == "" {
			continue
		}
		if asset != entry.Asset {
			return fmt.Errorf("%w: schedule for %s is denominated in %s, got %s",
				types.ErrUnsupportedFeeAsset, action.Tag(), entry.Asset, asset)
		}
		encoded, err := codec.EncodeAction(action)
		if err != nil {
			return err
		}
		total, ok := entry.TotalFee(len(encoded))
		if !ok {
			return fmt.Errorf("%w: fee computation for %s", types.ErrBalanceOverflow, action.Tag())
		}
		cur, seen := needed[asset]
		if !seen {
			order = append(order, asset)
		}
		if needed[asset], err = cur.Add(total); err != nil {
			return err
		}
	}
	for _, asset := range order {
		balance, err := a.accounts.Balance(state, signer, asset)
		if err != nil {
			return err
		}
		if balance.LT(needed[asset]) {
			return fmt.Errorf("%w: need %s %s, have %s", types.ErrInsufficientFee, needed[asset], asset, balance)
		}
	}
	return nil
}

// restingCount counts authoritative order records in the committed store.
// Metrics only; never consulted by execution.
func (a *App) restingCount() float64 {
	it, err := a.store.Range([]byte(codec.OrderPrefix))
	if err != nil {
		return 0
	}
	defer it.Close()
	var n float64
	for ; it.Valid(); it.Next() {
		n++
	}
	return n
}
