// Package analytics builds the chart-ready aggregates served by the stats
// endpoints, on top of the fill store's SQL aggregates.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

const dateLayout = "2006-01-02"

// VolumePoint is one day of chart data: per-wallet volume for the top
// wallets plus an aggregated remainder. Wallets maps the series keys
// ("top1".."topN", optionally "custom") to that day's volume.
type VolumePoint struct {
	Date    string             `json:"date"`
	Wallets map[string]float64 `json:"wallets"`
	Others  float64            `json:"others"`
}

// VolumeData is the aggregated chart payload for one query window.
type VolumeData struct {
	Points     []VolumePoint `json:"volumeData"`
	TopWallets []string      `json:"topWallets"`
	// CustomWallet echoes the requested wallet when it is tracked as its
	// own series, i.e. when it is not already among the top wallets.
	CustomWallet string `json:"customWallet,omitempty"`
}

// Aggregator turns fill store aggregates into chart data.
type Aggregator struct {
	store domain.FillStore
	topN  int
}

// NewAggregator creates an Aggregator ranking the given number of top
// wallets per window.
func NewAggregator(store domain.FillStore, topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{store: store, topN: topN}
}

// VolumeByWallet aggregates the window's daily volume into per-wallet
// series: the top-N wallets each get their own series, an optional custom
// wallet gets one when it is outside the top N, and everything else folds
// into Others. Every date in [fromDate, toDate] appears exactly once, with
// zeroes for days without data.
func (a *Aggregator) VolumeByWallet(ctx context.Context, fromDate, toDate, customWallet string) (VolumeData, error) {
	top, err := a.store.TopWallets(ctx, fromDate, toDate, a.topN)
	if err != nil {
		return VolumeData{}, fmt.Errorf("analytics: top wallets: %w", err)
	}

	topWallets := make([]string, len(top))
	topSet := make(map[string]int, len(top))
	for i, w := range top {
		topWallets[i] = w.UserAddress
		topSet[w.UserAddress] = i
	}

	custom := strings.ToLower(customWallet)
	_, customInTop := topSet[custom]

	daily, err := a.store.UserDailyVolume(ctx, fromDate, toDate)
	if err != nil {
		return VolumeData{}, fmt.Errorf("analytics: user daily volume: %w", err)
	}

	byDate := make(map[string]map[string]float64)
	for _, rec := range daily {
		day, ok := byDate[rec.DateStr]
		if !ok {
			day = make(map[string]float64)
			byDate[rec.DateStr] = day
		}
		day[rec.UserAddress] += rec.VolumeUSD
	}

	dates, err := dateRange(fromDate, toDate)
	if err != nil {
		return VolumeData{}, err
	}

	out := VolumeData{
		Points:     make([]VolumePoint, 0, len(dates)),
		TopWallets: topWallets,
	}
	if custom != "" && !customInTop {
		out.CustomWallet = custom
	}

	for _, date := range dates {
		day := byDate[date]
		point := VolumePoint{Date: date, Wallets: make(map[string]float64, len(topWallets)+1)}

		for i, wallet := range topWallets {
			point.Wallets[fmt.Sprintf("top%d", i+1)] = day[wallet]
		}
		if out.CustomWallet != "" {
			point.Wallets["custom"] = day[custom]
		}
		for wallet, vol := range day {
			if _, isTop := topSet[wallet]; isTop || wallet == custom {
				continue
			}
			point.Others += vol
		}

		out.Points = append(out.Points, point)
	}

	return out, nil
}

// dateRange lists the dates from fromDate through toDate inclusive.
func dateRange(fromDate, toDate string) ([]string, error) {
	start, err := time.Parse(dateLayout, fromDate)
	if err != nil {
		return nil, fmt.Errorf("analytics: invalid from date %q: %w", fromDate, err)
	}
	end, err := time.Parse(dateLayout, toDate)
	if err != nil {
		return nil, fmt.Errorf("analytics: invalid to date %q: %w", toDate, err)
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates, nil
}
