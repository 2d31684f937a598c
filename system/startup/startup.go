package startup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/db"
	"github.com/thatsimonsguy/panel-provisioner/internal/config"
	"github.com/thatsimonsguy/panel-provisioner/internal/datadog"
	"github.com/thatsimonsguy/panel-provisioner/internal/model"
	"github.com/thatsimonsguy/panel-provisioner/internal/pinmap"
	"github.com/thatsimonsguy/panel-provisioner/internal/provisioning"
)

type DiscoverFunc func(ctx context.Context) (*model.DiscoveredPanel, error)

type Pusher interface {
	Push(ctx context.Context, payload provisioning.Payload) error
}

// Session is one provisioning run against one panel.
type Session struct {
	Panel model.DiscoveredPanel
	Store *provisioning.Store
}

// ResolvePanel uses the configured panel when panel_url is set and falls back
// to discovery otherwise. A configured panel without a model is assumed to be
// a Pro.
func ResolvePanel(ctx context.Context, cfg *config.Config, discover DiscoverFunc) (model.DiscoveredPanel, error) {
	if cfg.PanelURL != "" {
		modelName := cfg.PanelModel
		if modelName == "" {
			modelName = pinmap.ModelKonnectedPro
		}
		log.Info().Str("url_base", cfg.PanelURL).Str("model", modelName).Msg("Using configured panel, skipping discovery")
		return model.DiscoveredPanel{ModelName: modelName, URLBase: cfg.PanelURL}, nil
	}

	panel, err := discover(ctx)
	if err != nil {
		return model.DiscoveredPanel{}, fmt.Errorf("discovery failed: %w", err)
	}
	return *panel, nil
}

// Prepare builds the pin table for the panel's model and applies the
// configured pin assignments to a fresh store.
func Prepare(cfg *config.Config, panel model.DiscoveredPanel) (*Session, error) {
	table, err := pinmap.New(panel.ModelName)
	if err != nil {
		return nil, err
	}
	store := provisioning.NewStore(table)

	reqs, err := cfg.Requests()
	if err != nil {
		return nil, err
	}
	if err := store.Apply(reqs); err != nil {
		return nil, err
	}

	datadog.Gauge("pins.assigned", float64(store.Assigned()), "model:"+table.ModelName())
	log.Info().
		Str("model", table.ModelName()).
		Int("pins", table.PinCount()).
		Int("assigned", store.Assigned()).
		Msg("Provisioning session prepared")

	return &Session{Panel: panel, Store: store}, nil
}

// Deliver builds the settings payload and either writes it to out (dry run) or
// pushes it to the panel. Every attempt is recorded when dbConn is non-nil.
func Deliver(ctx context.Context, cfg *config.Config, sess *Session, pusher Pusher, dbConn *sql.DB, out io.Writer) error {
	payload := provisioning.BuildPayload(sess.Store, cfg.Endpoint, cfg.Token)
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var pushErr error
	if cfg.DryRun {
		log.Info().Msg("Dry run, payload not sent")
		fmt.Fprintln(out, string(body))
	} else {
		pushErr = pusher.Push(ctx, payload)
	}

	tag := "model:" + sess.Store.Table().ModelName()
	if pushErr != nil {
		datadog.Incr("pushes.failed", tag)
	} else {
		datadog.Incr("pushes", tag)
	}

	if dbConn != nil {
		rec := db.PushRecord{
			ModelName:    sess.Store.Table().ModelName(),
			SerialNumber: sess.Panel.SerialNumber,
			URLBase:      sess.Panel.URLBase,
			Payload:      string(body),
			DryRun:       cfg.DryRun,
		}
		if pushErr != nil {
			rec.Error = pushErr.Error()
		}
		id, err := db.RecordPush(dbConn, rec)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to record push history")
		} else {
			log.Debug().Str("id", id).Msg("Recorded push")
		}
	}

	return pushErr
}
