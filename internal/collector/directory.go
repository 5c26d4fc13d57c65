package collector

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"BuyTracer/internal/model"

	"gopkg.in/yaml.v3"
)

// Directory maps tickers to their listing. A Directory loaded without a
// file is permissive: every ticker is assumed to be listed on TWSE.
type Directory struct {
	listings map[string]model.Listing
}

type directoryFile struct {
	Listings []model.Listing `yaml:"listings"`
}

// LoadDirectory reads a YAML listings file. An empty path yields a
// permissive directory.
func LoadDirectory(path string) (*Directory, error) {
	if path == "" {
		return &Directory{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read listings file: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse listings file: %w", err)
	}
	return NewDirectory(f.Listings)
}

// NewDirectory builds a directory from listings. Market defaults to TWSE.
func NewDirectory(listings []model.Listing) (*Directory, error) {
	d := &Directory{listings: make(map[string]model.Listing, len(listings))}
	for _, l := range listings {
		l.Ticker = strings.ToUpper(strings.TrimSpace(l.Ticker))
		if l.Ticker == "" {
			return nil, errors.New("listing with empty ticker")
		}
		l.Market = strings.ToUpper(strings.TrimSpace(l.Market))
		switch l.Market {
		case "":
			l.Market = model.MarketTWSE
		case model.MarketTWSE, model.MarketTPEX:
		default:
			return nil, fmt.Errorf("listing %s: unknown market %q", l.Ticker, l.Market)
		}
		d.listings[l.Ticker] = l
	}
	return d, nil
}

// Configured reports whether the directory is backed by real listings.
func (d *Directory) Configured() bool {
	return d != nil && d.listings != nil
}

// Lookup resolves ticker. A permissive directory reports every ticker as
// a TWSE listing named after itself.
func (d *Directory) Lookup(ticker string) (model.Listing, bool) {
	if !d.Configured() {
		return model.Listing{Ticker: ticker, Name: ticker, Market: model.MarketTWSE}, true
	}
	l, ok := d.listings[ticker]
	return l, ok
}

// DisplayName returns the listing name, or the ticker itself.
func (d *Directory) DisplayName(ticker string) string {
	if l, ok := d.Lookup(ticker); ok && l.Name != "" {
		return l.Name
	}
	return ticker
}

// Listings returns every listing of market (all markets when empty),
// sorted by ticker.
func (d *Directory) Listings(market string) []model.Listing {
	if !d.Configured() {
		return nil
	}
	var out []model.Listing
	for _, l := range d.listings {
		if market == "" || strings.EqualFold(l.Market, market) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
