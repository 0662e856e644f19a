// Package notify defines the event sink the resolution engine reports
// through. Callers decide how events are rendered; the engine only decides
// which events fire on which code path.
package notify

import "github.com/charmbracelet/log"

// Notifier receives progress and outcome events during symbol resolution.
// Implementations must be safe for use from a single resolution call at a
// time; the engine never invokes callbacks concurrently within one lookup.
type Notifier interface {
	// FoundInCache fires when a lookup is satisfied from the local cache
	// without touching the network.
	FoundInCache(path string)

	// FoundOnServer fires when a remote fetch produced the file.
	FoundOnServer(path string)

	// ProbeFailed fires for every candidate location that was consulted
	// and rejected, with the reason.
	ProbeFailed(path string, err error)

	// DownloadProgress fires after each transferred chunk with the total
	// bytes transferred so far.
	DownloadProgress(bytes int64)

	// DownloadComplete fires once a remote file is fully resident,
	// indicating whether the compressed variant was fetched.
	DownloadComplete(path string, wasCompressed bool)

	// DecompressComplete fires after a compressed artifact has been
	// expanded to its final path.
	DecompressComplete(path string)
}

// Nop is a Notifier that discards all events.
type Nop struct{}

func (Nop) FoundInCache(string)           {}
func (Nop) FoundOnServer(string)          {}
func (Nop) ProbeFailed(string, error)     {}
func (Nop) DownloadProgress(int64)        {}
func (Nop) DownloadComplete(string, bool) {}
func (Nop) DecompressComplete(string)     {}

// LogNotifier renders events through a structured logger. Progress events
// are logged at debug level to keep default output quiet.
type LogNotifier struct {
	Logger *log.Logger
}

// NewLogNotifier creates a notifier backed by l.
func NewLogNotifier(l *log.Logger) *LogNotifier {
	return &LogNotifier{Logger: l}
}

func (n *LogNotifier) FoundInCache(path string) {
	n.Logger.Info("found in cache", "path", path)
}

func (n *LogNotifier) FoundOnServer(path string) {
	n.Logger.Info("found on server", "path", path)
}

func (n *LogNotifier) ProbeFailed(path string, err error) {
	n.Logger.Debug("probe failed", "path", path, "err", err)
}

func (n *LogNotifier) DownloadProgress(bytes int64) {
	n.Logger.Debug("downloading", "bytes", bytes)
}

func (n *LogNotifier) DownloadComplete(path string, wasCompressed bool) {
	n.Logger.Info("download complete", "path", path, "compressed", wasCompressed)
}

func (n *LogNotifier) DecompressComplete(path string) {
	n.Logger.Info("decompressed", "path", path)
}
