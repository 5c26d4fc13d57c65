package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"

	log "github.com/sirupsen/logrus"
)

// DefaultTWSEURL is the exchange's daily-quotes-per-month endpoint.
const DefaultTWSEURL = "https://www.twse.com.tw/exchangeReport/STOCK_DAY"

// TWSEProvider implements Provider against the TWSE STOCK_DAY report.
type TWSEProvider struct {
	BaseURL string
	Client  *http.Client
	// MinInterval spaces consecutive requests; the exchange blocks clients
	// that poll faster than a few requests per five seconds.
	MinInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewTWSEProvider creates a provider with optional proxy support.
func NewTWSEProvider(baseURL, proxyURL string, timeout time.Duration) *TWSEProvider {
	if baseURL == "" {
		baseURL = DefaultTWSEURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			log.Warnf("ignoring invalid proxy url %q: %v", proxyURL, err)
		}
	}
	return &TWSEProvider{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (p *TWSEProvider) Name() string { return "twse" }

// stockDayResponse is the STOCK_DAY JSON envelope. Rows hold
// date, shares, turnover, open, high, low, close, change, transactions and,
// in newer responses, a trailing empty column.
type stockDayResponse struct {
	Stat   string     `json:"stat"`
	Date   string     `json:"date"`
	Title  string     `json:"title"`
	Fields []string   `json:"fields"`
	Data   [][]string `json:"data"`
}

func (p *TWSEProvider) FetchMonth(ctx context.Context, ticker string, year int, month time.Month) ([]model.Bar, error) {
	if err := p.throttle(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", fmt.Sprintf("%04d%02d01", year, int(month)))
	q.Set("stockNo", ticker)
	u := p.BaseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twse fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("twse read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twse: status %d, body: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var r stockDayResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("twse decode: %w", err)
	}
	// Any stat other than OK means the month has no rows for this ticker.
	if r.Stat != "OK" {
		log.WithFields(log.Fields{"ticker": ticker, "year": year, "month": int(month)}).
			Debugf("twse returned no data: %s", r.Stat)
		return nil, nil
	}

	bars := make([]model.Bar, 0, len(r.Data))
	for _, row := range r.Data {
		b, ok, err := parseStockDayRow(row)
		if err != nil {
			return nil, fmt.Errorf("twse parse %s %04d-%02d: %w", ticker, year, int(month), err)
		}
		if ok {
			bars = append(bars, b)
		}
	}
	return bars, nil
}

func (p *TWSEProvider) throttle(ctx context.Context) error {
	if p.MinInterval <= 0 {
		return nil
	}
	p.mu.Lock()
	wait := time.Until(p.last.Add(p.MinInterval))
	if wait < 0 {
		wait = 0
	}
	p.last = time.Now().Add(wait)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseStockDayRow converts one report row. Rows without a traded price
// ("--") are skipped and reported with ok=false.
func parseStockDayRow(row []string) (bar model.Bar, ok bool, err error) {
	if len(row) < 9 {
		return bar, false, fmt.Errorf("row has %d columns, want at least 9", len(row))
	}
	date, err := parseROCDate(row[0])
	if err != nil {
		return bar, false, err
	}
	for _, col := range row[3:7] {
		if strings.TrimSpace(col) == "--" {
			return bar, false, nil
		}
	}

	volume, err := parseInt(row[1])
	if err != nil {
		return bar, false, fmt.Errorf("volume: %w", err)
	}
	turnover, err := parseInt(row[2])
	if err != nil {
		return bar, false, fmt.Errorf("turnover: %w", err)
	}
	var prices [4]float64
	for i, col := range row[3:7] {
		if prices[i], err = parseFloat(col); err != nil {
			return bar, false, fmt.Errorf("price column %d: %w", i+3, err)
		}
	}

	return model.Bar{
		Date:     date,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		Volume:   volume,
		Turnover: turnover,
	}, true, nil
}

// parseROCDate parses "113/01/02" (Minguo year) as 2024-01-02. Some rows
// carry a trailing "＊" marker which is ignored.
func parseROCDate(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "＊"))
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed date %q", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed date %q", s)
		}
		nums[i] = n
	}
	if nums[1] < 1 || nums[1] > 12 || nums[2] < 1 || nums[2] > 31 {
		return time.Time{}, fmt.Errorf("malformed date %q", s)
	}
	return calendar.Date(nums[0]+1911, time.Month(nums[1]), nums[2]), nil
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 10, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
