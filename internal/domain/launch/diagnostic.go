package launch

import (
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/kioskhelper/internal/platform"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Diagnostic is the fact bundle captured when a target cannot be resolved.
// Any query that failed while collecting it is listed in Errors.
type Diagnostic struct {
	Timestamp            time.Time               `json:"timestamp"`
	Package              string                  `json:"package"`
	Release              string                  `json:"release"`
	SDKInt               int                     `json:"sdkInt"`
	UID                  int                     `json:"uid"`
	UserIndex            int                     `json:"userIndex"`
	LaunchIntentResolved bool                    `json:"launchIntentResolved"`
	Installed            bool                    `json:"installed"`
	Enabled              bool                    `json:"enabled"`
	Activities           []platform.ActivityInfo `json:"activities"`
	LauncherMatches      []string                `json:"launcherMatches"`
	Probed               []string                `json:"probed"`
	Errors               []string                `json:"errors,omitempty"`
}

// Fields renders the bundle as one structured field per fact
func (d *Diagnostic) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("package", d.Package),
		zap.String("release", d.Release),
		zap.Int("sdk_int", d.SDKInt),
		zap.Int("uid", d.UID),
		zap.Int("user_index", d.UserIndex),
		zap.Bool("launch_intent_resolved", d.LaunchIntentResolved),
		zap.Bool("installed", d.Installed),
		zap.Bool("enabled", d.Enabled),
		zap.Array("activities", activityList(d.Activities)),
		zap.Strings("launcher_matches", d.LauncherMatches),
		zap.Strings("probed", d.Probed),
	}
	if len(d.Errors) > 0 {
		fields = append(fields, zap.Strings("query_errors", d.Errors))
	}
	return fields
}

func (d *Diagnostic) addError(query string, err error) {
	d.Errors = append(d.Errors, fmt.Sprintf("%s: %v", query, err))
}

type activityList []platform.ActivityInfo

func (a activityList) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, act := range a {
		if err := enc.AppendObject(activityEntry(act)); err != nil {
			return err
		}
	}
	return nil
}

type activityEntry platform.ActivityInfo

func (a activityEntry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("class", a.Class)
	enc.AddBool("exported", a.Exported)
	enc.AddBool("enabled", a.Enabled)
	return nil
}

// History keeps the most recent diagnostics in a fixed-size ring
type History struct {
	entries []*Diagnostic
	head    int
	size    int
	maxSize int
	mu      sync.RWMutex
}

// NewHistory creates a ring holding up to maxSize diagnostics
func NewHistory(maxSize int) *History {
	if maxSize < 1 {
		maxSize = 1
	}
	return &History{
		entries: make([]*Diagnostic, maxSize),
		maxSize: maxSize,
	}
}

// Add inserts a diagnostic, evicting the oldest when full
func (h *History) Add(d *Diagnostic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = d
	h.head = (h.head + 1) % h.maxSize
	if h.size < h.maxSize {
		h.size++
	}
}

// Recent returns up to limit diagnostics, newest first, optionally only
// those for pkg. A limit <= 0 returns every match.
func (h *History) Recent(limit int, pkg string) []Diagnostic {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > h.size {
		limit = h.size
	}

	result := make([]Diagnostic, 0, limit)
	for i := 0; i < h.size && len(result) < limit; i++ {
		idx := (h.head - 1 - i + h.maxSize) % h.maxSize
		entry := h.entries[idx]
		if entry != nil && (pkg == "" || entry.Package == pkg) {
			result = append(result, *entry)
		}
	}
	return result
}

// Len returns the number of retained diagnostics
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}
