package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/internal/model"
)

const SearchTarget = "urn:schemas-konnected-io:device:Security"

var (
	// ErrNoPanel is returned when nothing answers the search.
	ErrNoPanel = errors.New("discovery: no panel responded")

	// ErrIncompleteResponse is returned when a reply lacks st or location.
	ErrIncompleteResponse = errors.New("discovery: incomplete search response")

	// ErrMissingURLBase is returned when the description has no URLBase.
	ErrMissingURLBase = errors.New("discovery: device description has no URLBase")
)

type SearchFunc func(ctx context.Context, st string, wait time.Duration) ([]SearchResponse, error)

type Discoverer struct {
	client *http.Client
	search SearchFunc
	wait   time.Duration
}

func NewDiscoverer(wait time.Duration, client *http.Client) *Discoverer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discoverer{client: client, search: Search, wait: wait}
}

// Discover finds the first panel on the local network and reads its device
// description.
func (d *Discoverer) Discover(ctx context.Context) (*model.DiscoveredPanel, error) {
	log.Info().Str("st", SearchTarget).Msg("Initiating SSDP discovery")

	responses, err := d.search(ctx, SearchTarget, d.wait)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		log.Warn().Str("st", SearchTarget).Msg("No panels responded to discovery search")
		return nil, ErrNoPanel
	}

	// Only one panel is supported for now.
	resp := responses[0]
	if resp.ST == "" {
		return nil, fmt.Errorf("%w: st is missing or blank", ErrIncompleteResponse)
	}
	if resp.Location == "" {
		return nil, fmt.Errorf("%w: location for %s is missing or blank", ErrIncompleteResponse, resp.ST)
	}

	panel, err := d.fetchDescription(ctx, resp.Location)
	if err != nil {
		return nil, err
	}
	panel.ST = resp.ST

	if panel.URLBase == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingURLBase, resp.Location)
	}

	log.Info().
		Str("model", panel.ModelName).
		Str("serial", panel.SerialNumber).
		Str("url_base", panel.URLBase).
		Msg("Found panel")
	return &panel, nil
}

func (d *Discoverer) fetchDescription(ctx context.Context, location string) (model.DiscoveredPanel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return model.DiscoveredPanel{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return model.DiscoveredPanel{}, fmt.Errorf("failed to fetch device description: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.DiscoveredPanel{}, fmt.Errorf("device description returned status %d", resp.StatusCode)
	}

	return ParseDescription(resp.Body)
}
