package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kalambet/sentinel/internal/api"
	"github.com/kalambet/sentinel/internal/feedback"
	"github.com/kalambet/sentinel/internal/scoring"
	"github.com/kalambet/sentinel/internal/service"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func classificationColor(c scoring.Classification) string {
	switch c {
	case scoring.LikelyBot:
		return colorRed
	case scoring.Suspicious:
		return colorYellow
	case scoring.ProbablyHuman:
		return colorGreen
	default:
		return colorCyan
	}
}

func printScore(s api.ScoreResponse) {
	fmt.Printf("%s  %s\n", colorize(colorBold, "u/"+s.Username), colorize(classificationColor(s.Classification), string(s.Classification)))
	fmt.Printf("  bot probability  %.2f\n", s.BotProbability)
	fmt.Printf("  confidence       %.2f (%d samples)\n", s.Confidence, s.SampleCount)
	if s.LowSample {
		fmt.Printf("  %s\n", colorize(colorYellow, "low sample: too little activity for a confident score"))
	}
	if tz := s.TimezoneEstimate; tz != nil {
		fmt.Printf("  timezone         %s (confidence %.2f)\n", tz.LikelyOffset, tz.Confidence)
	}
	if len(s.ContributingFactors) > 0 {
		fmt.Println("  factors:")
		for _, f := range s.ContributingFactors {
			fmt.Printf("    %-28s %+.3f  (value %.3f)\n", f.Factor, f.Contribution, f.Value)
		}
	}
	source := "computed"
	if s.Cached {
		source = "cached"
	}
	fmt.Printf("  %s at %s, model %s\n", source, s.AnalyzedAt.Format("2006-01-02 15:04:05Z07:00"), s.ModelVersion)
}

func printBatch(b api.BatchResponse) {
	for _, r := range b.Results {
		switch {
		case r.Score != nil:
			fmt.Printf("  %-22s %-15s %.2f  %s\n", r.Username,
				colorize(classificationColor(r.Score.Classification), string(r.Score.Classification)),
				r.Score.BotProbability, r.Status)
		default:
			fmt.Printf("  %-22s %s\n", r.Username, colorize(colorRed, "error: "+r.Error))
		}
	}
	fmt.Printf("%d accounts in %dms\n", len(b.Results), b.ProcessingTimeMS)
}

func printStats(s service.Stats) {
	printStatus("Analyzed", "%d accounts", s.TotalAnalyzed)
	printStatus("Hit rate", "%.1f%%", s.CacheHitRate*100)
	printStatus("Model", "%s", s.ModelVersion)
	printStatus("Uptime", "%s", formatUptime(s.UptimeSeconds))

	kinds := make([]string, 0, len(s.FeedbackCounts))
	for k := range s.FeedbackCounts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, s.FeedbackCounts[feedback.Kind(k)])
	}
	printStatus("Feedback", "%s", strings.Join(parts, " "))
}

func formatUptime(seconds float64) string {
	total := int(seconds)
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
