// Package fx converts and formats generation spend. Conversion happens once
// at final reporting time, not per attempt.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultTimeout = 10 * time.Second

// Options configures the converter. When RateURL is empty, FallbackRate is
// used directly; when both are unset, conversion is unavailable.
type Options struct {
	RateURL      string
	FallbackRate float64
	HTTPClient   *http.Client
}

// Converter resolves USD amounts to EUR via an exchange-rate endpoint with
// a static fallback.
type Converter struct {
	rateURL      string
	fallbackRate float64
	client       *http.Client
}

func NewConverter(opts Options) *Converter {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Converter{
		rateURL:      strings.TrimSpace(opts.RateURL),
		fallbackRate: opts.FallbackRate,
		client:       client,
	}
}

type rateResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// ToEUR converts a USD amount. A live rate is preferred; the fallback rate
// covers endpoint outages so a finished job still reports spend.
func (c *Converter) ToEUR(ctx context.Context, usd float64) (float64, error) {
	if usd == 0 {
		return 0, nil
	}
	rate, err := c.rate(ctx)
	if err != nil {
		if c.fallbackRate > 0 {
			return usd * c.fallbackRate, nil
		}
		return 0, err
	}
	return usd * rate, nil
}

func (c *Converter) rate(ctx context.Context) (float64, error) {
	if c.rateURL == "" {
		if c.fallbackRate > 0 {
			return c.fallbackRate, nil
		}
		return 0, errors.New("fx: no rate source configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rateURL, nil)
	if err != nil {
		return 0, fmt.Errorf("fx: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fx: fetch rate: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fx: rate endpoint status %d", resp.StatusCode)
	}
	var out rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("fx: decode rate: %w", err)
	}
	rate, ok := out.Rates["EUR"]
	if !ok || rate <= 0 {
		return 0, errors.New("fx: EUR rate missing from response")
	}
	return rate, nil
}

var (
	usdPrinter = message.NewPrinter(language.AmericanEnglish)
	eurPrinter = message.NewPrinter(language.German)
)

// FormatUSD renders an amount with US digit grouping, e.g. "$1,234.50".
func FormatUSD(v float64) string {
	return usdPrinter.Sprintf("$%.2f", v)
}

// FormatEUR renders an amount with German digit grouping, e.g. "1.234,50 €".
func FormatEUR(v float64) string {
	return eurPrinter.Sprintf("%.2f €", v)
}
