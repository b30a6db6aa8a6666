// Package ledgergrp maintains the group of handlers for ledger access.
package ledgergrp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/blockledger/blockledger/business/core/ledger"
	v1 "github.com/blockledger/blockledger/business/web/v1"
	"github.com/blockledger/blockledger/foundation/events"
	"github.com/blockledger/blockledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Ledger *ledger.Core
	WS     websocket.Upgrader
	Evts   *events.Events
}

// SubmitBlock accepts a new block for admission into the ledger.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var app newBlock
	if err := web.Decode(r, &app); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit block", "traceid", v.TraceID, "block", app.ID, "height", app.Height, "txs", len(app.Transactions))

	if err := h.Ledger.SubmitBlock(ctx, toCoreNewBlock(app)); err != nil {
		return errorForKind(err)
	}

	resp := struct {
		Status string `json:"status"`
		Height int    `json:"height"`
	}{
		Status: "block accepted",
		Height: app.Height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Balance returns the sum of the unspent outputs owned by an address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	balance, err := h.Ledger.Balance(ctx, address)
	if err != nil {
		return fmt.Errorf("unable to query balance: %w", err)
	}

	resp := struct {
		Address string  `json:"address"`
		Balance float64 `json:"balance"`
	}{
		Address: address,
		Balance: balance,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Height returns the height of the latest accepted block.
func (h Handlers) Height(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := h.Ledger.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("unable to query height: %w", err)
	}

	resp := struct {
		Height int `json:"height"`
	}{
		Height: height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Rollback reverts the ledger to the specified height.
func (h Handlers) Rollback(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	height, err := strconv.Atoi(web.Param(r, "height"))
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("rollback height must be an integer: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("rollback", "traceid", v.TraceID, "height", height)

	if err := h.Ledger.Rollback(ctx, height); err != nil {
		return errorForKind(err)
	}

	resp := struct {
		Status string `json:"status"`
		Height int    `json:"height"`
	}{
		Status: "rollback complete",
		Height: height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByHeight returns the block records in an inclusive height range.
func (h Handlers) BlocksByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := strconv.Atoi(web.Param(r, "from"))
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("from height must be an integer: %w", err), http.StatusBadRequest)
	}

	to, err := strconv.Atoi(web.Param(r, "to"))
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("to height must be an integer: %w", err), http.StatusBadRequest)
	}

	blks, err := h.Ledger.QueryBlocksByHeight(ctx, from, to)
	if err != nil {
		return errorForKind(err)
	}

	if len(blks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(blks))
	for i, blk := range blks {
		blocks[i] = toAppBlock(blk)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Events handles a web socket to provide ledger events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// =============================================================================

// errorForKind wraps client caused ledger errors with the right HTTP status.
// Errors of unknown kind pass through untouched so the Errors middleware
// reports them as internal without leaking details.
func errorForKind(err error) error {
	switch ledger.GetKind(err) {
	case ledger.KindConflict:
		return v1.NewRequestError(err, http.StatusConflict)

	case ledger.KindStructural, ledger.KindSequencing, ledger.KindIdentity,
		ledger.KindConservation, ledger.KindReferential, ledger.KindRange:
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	return err
}
