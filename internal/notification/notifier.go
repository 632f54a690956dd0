// Package notification delivers backtest completion alerts to external
// channels (log, webhooks, Telegram).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"market-analyzer/internal/backtest"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	RunID   string     `json:"run_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several notifiers, attempting all of them.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunAlert summarizes a finished run. Runs losing more than lossPct percent
// are raised as warnings.
func RunAlert(rep *backtest.Report, lossPct float64) Alert {
	res := rep.Result
	level := AlertInfo
	if res.ROIPercent <= -lossPct {
		level = AlertWarning
	}
	msg := fmt.Sprintf("%s %s to %s: ROI %.2f%%, win rate %.2f%%, %d closed trades, final value %.2f",
		rep.Strategy,
		rep.From.Format("2006-01-02"), rep.To.Format("2006-01-02"),
		res.ROIPercent, res.WinRatePercent, res.TradeCount, res.FinalValue)
	if res.OpenPosition {
		msg += " (position still open)"
	}
	return Alert{
		Level:   level,
		Title:   "Backtest " + rep.Symbol,
		Message: msg,
		RunID:   rep.RunID,
	}
}

// ReportSink sends a RunAlert for every finished run. It implements
// backtest.Sink.
type ReportSink struct {
	notifier Notifier
	lossPct  float64
}

// NewReportSink creates a sink that warns on runs losing more than lossPct percent.
func NewReportSink(n Notifier, lossPct float64) *ReportSink {
	return &ReportSink{notifier: n, lossPct: lossPct}
}

func (s *ReportSink) Record(ctx context.Context, rep *backtest.Report) error {
	return s.notifier.Send(ctx, RunAlert(rep, s.lossPct))
}
