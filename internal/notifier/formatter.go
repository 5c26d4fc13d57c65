package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"BuyTracer/internal/model"
	"BuyTracer/internal/recorder"
)

// DigestEntry is one watchlist ticker's outcome in the daily digest.
type DigestEntry struct {
	Ticker   string
	Analysis *model.Analysis
	Err      error
}

func signalNames(s model.SignalSet) string {
	cats := s.Categories()
	labels := make([]string, len(cats))
	for i, c := range cats {
		labels[i] = c.Label()
	}
	return strings.Join(labels, "、")
}

// FormatAnalysis renders one ticker's analysis.
func FormatAnalysis(a *model.Analysis) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s %s</b> | %s\n\n", a.Ticker, html.EscapeString(a.DisplayName), a.Latest.Date))
	b.WriteString(fmt.Sprintf("收盤: %.2f | 量: %d\n", a.Latest.Close, a.Latest.Volume))
	b.WriteString(fmt.Sprintf("MA5: %.2f | MA20: %.2f | MA60: %.2f\n", a.Latest.MA5, a.Latest.MA20, a.Latest.MA60))
	b.WriteString(fmt.Sprintf("DIF: %.2f | DEM: %.2f | OSC: %+.2f\n\n", a.Latest.DIF, a.Latest.DEM, a.Latest.OSC))

	if a.Current.HasSignal {
		b.WriteString(fmt.Sprintf("🟢 <b>今日買點:</b> %s\n", signalNames(a.Current.Signals)))
	} else if a.Current.Signals.IsSell() {
		b.WriteString(fmt.Sprintf("🔴 <b>今日賣點:</b> %s\n", signalNames(a.Current.Signals)))
	}

	s := a.Summary
	b.WriteString(fmt.Sprintf("訊號統計: 共 %d 次 (買 %d / 賣 %d)\n", s.TotalCount, s.BuyCount, s.SellCount))
	if s.Latest != nil {
		b.WriteString(fmt.Sprintf("最近訊號: %s %s @ %.2f\n", s.Latest.Date, signalNames(s.Latest.Signals), s.Latest.Close))
	}
	return b.String()
}

// FormatDigest renders the watchlist digest sent after the daily sync.
func FormatDigest(day time.Time, entries []DigestEntry) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📬 <b>BuyTracer 每日摘要</b> | %s\n\n", day.Format("2006-01-02")))

	var quiet, failed []string
	for _, e := range entries {
		switch {
		case e.Err != nil:
			failed = append(failed, fmt.Sprintf("  %s: %s", e.Ticker, html.EscapeString(failureReason(e.Err))))
		case e.Analysis.Current.Signals.Empty():
			quiet = append(quiet, e.Ticker)
		default:
			a := e.Analysis
			icon := "🔴"
			if a.Current.HasSignal {
				icon = "🟢"
			}
			b.WriteString(fmt.Sprintf("%s <b>%s %s</b> %.2f: %s\n", icon, a.Ticker,
				html.EscapeString(a.DisplayName), a.Latest.Close, signalNames(a.Current.Signals)))
		}
	}
	if len(quiet) > 0 {
		b.WriteString(fmt.Sprintf("\n無訊號: %s\n", strings.Join(quiet, ", ")))
	}
	if len(failed) > 0 {
		b.WriteString("\n❌ <b>失敗:</b>\n")
		b.WriteString(strings.Join(failed, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func failureReason(err error) string {
	if code := model.CodeOf(err); code != model.CodeInternal {
		return string(code)
	}
	return err.Error()
}

// FormatCacheList renders the cached tickers.
func FormatCacheList(infos []model.CacheInfo) string {
	if len(infos) == 0 {
		return "📦 快取為空"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>快取</b> (%d)\n\n", len(infos)))
	for _, i := range infos {
		b.WriteString(fmt.Sprintf("%s %s: %s ~ %s (%d 筆)\n", i.Ticker, html.EscapeString(i.DisplayName),
			i.DateRange.StartDate, i.DateRange.EndDate, i.RecordCount))
	}
	return b.String()
}

// FormatStatus renders service health and the latest sync runs.
func FormatStatus(h model.Health, runs []recorder.SyncRun) string {
	var b strings.Builder
	b.WriteString("🩺 <b>系統狀態</b>\n\n")
	b.WriteString(fmt.Sprintf("版本: %s | 資料源: %s\n", h.Version, h.Provider))
	b.WriteString(fmt.Sprintf("快取數: %d | 運行: %s\n", h.CacheCount, h.Uptime))
	if len(runs) > 0 {
		b.WriteString("\n最近同步:\n")
		for _, r := range runs {
			status := "✅"
			if r.Error != "" {
				status = "❌"
			} else if r.FailedMonths > 0 {
				status = "⚠️"
			}
			b.WriteString(fmt.Sprintf("  %s %s %s +%d (%s)\n", status, r.Ticker, r.Mode, r.BarsWritten,
				r.StartedAt.Format("01-02 15:04")))
		}
	}
	return b.String()
}

// FormatSignalHistory renders the recorded signal days of one ticker.
func FormatSignalHistory(ticker string, recs []recorder.SignalRecord) string {
	if len(recs) == 0 {
		return fmt.Sprintf("📭 %s 尚無訊號紀錄", ticker)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>%s 訊號紀錄</b> (%d)\n\n", ticker, len(recs)))
	for _, r := range recs {
		icon := "🔴"
		if r.Signals.IsBuy() {
			icon = "🟢"
		}
		b.WriteString(fmt.Sprintf("%s %s %.2f: %s\n", icon, r.Date, r.Close, signalNames(r.Signals)))
	}
	return b.String()
}

// HelpText lists the supported commands.
const HelpText = "可用命令:\n• /status 系統狀態\n• /analyze 2330 分析個股\n• /signals 2330 訊號紀錄\n• /cache 快取列表\n• /sync 立即同步觀察清單"
