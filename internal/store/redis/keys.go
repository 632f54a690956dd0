package redis

const (
	// RunsStream is the capped stream of every published report.
	RunsStream = "bt:runs"

	// ReportPattern matches every per-symbol report channel.
	ReportPattern = "pub:backtest:*"

	runsStreamMaxLen = 5000
)

// LatestKey holds the newest report for a symbol.
func LatestKey(symbol string) string { return "bt:latest:" + symbol }

// ReportChannel is the PubSub channel a symbol's reports are published on.
func ReportChannel(symbol string) string { return "pub:backtest:" + symbol }

// SymbolFromChannel extracts the symbol from a report channel name.
func SymbolFromChannel(channel string) string {
	const prefix = "pub:backtest:"
	if len(channel) > len(prefix) && channel[:len(prefix)] == prefix {
		return channel[len(prefix):]
	}
	return ""
}
