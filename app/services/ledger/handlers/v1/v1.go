// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/blockledger/blockledger/app/services/ledger/handlers/v1/ledgergrp"
	"github.com/blockledger/blockledger/business/core/ledger"
	"github.com/blockledger/blockledger/foundation/events"
	"github.com/blockledger/blockledger/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	Ledger *ledger.Core
	Evts   *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	lgh := ledgergrp.Handlers{
		Log:    cfg.Log,
		Ledger: cfg.Ledger,
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", lgh.Events)
	app.Handle(http.MethodPost, version, "/blocks", lgh.SubmitBlock)
	app.Handle(http.MethodGet, version, "/blocks/list/:from/:to", lgh.BlocksByHeight)
	app.Handle(http.MethodGet, version, "/balances/:address", lgh.Balance)
	app.Handle(http.MethodGet, version, "/height", lgh.Height)
	app.Handle(http.MethodPost, version, "/rollback/:height", lgh.Rollback)
}
