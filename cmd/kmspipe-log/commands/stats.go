package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kmspipe/kmspipe-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	FrameActions     map[log.FrameAction]int
	Commits          int
	CommitFailures   int
	CommitTime       time.Duration
	CommitsTimed     int
	Displays         map[int]*DisplayStats
	Sessions         map[string]*SessionStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// DisplayStats holds statistics for a single display.
type DisplayStats struct {
	Events    int
	Presented int
	Dropped   int
	ModeSets  int
	VSyncs    int

	// VSync interval tracking from consecutive blank timestamps.
	lastVSync   time.Time
	intervals   int
	intervalSum time.Duration
	intervalMin time.Duration
	intervalMax time.Duration
}

// SessionStats holds statistics for a single manager session.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		FrameActions:     make(map[log.FrameAction]int),
		Displays:         make(map[int]*DisplayStats),
		Sessions:         make(map[string]*SessionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		// Track session stats
		sess, ok := stats.Sessions[event.SessionID]
		if !ok {
			sess = &SessionStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
			}
			stats.Sessions[event.SessionID] = sess
		}
		sess.Events++
		if event.Timestamp.After(sess.LastSeen) {
			sess.LastSeen = event.Timestamp
		}

		// Track per-display stats
		if event.Display != log.NoDisplay {
			ds, ok := stats.Displays[event.Display]
			if !ok {
				ds = &DisplayStats{}
				stats.Displays[event.Display] = ds
			}
			ds.Events++
			if event.ModeSet != nil {
				ds.ModeSets++
			}
			if event.Frame != nil {
				switch event.Frame.Action {
				case log.FramePresented:
					ds.Presented++
				case log.FrameDropped:
					ds.Dropped++
				}
			}
			if event.VSync != nil {
				ds.recordVSync(event)
			}
		}

		if event.Frame != nil {
			stats.FrameActions[event.Frame.Action]++
		}

		if event.Commit != nil {
			stats.Commits++
			if event.Commit.Failed {
				stats.CommitFailures++
			}
			if event.Commit.Duration != nil {
				stats.CommitTime += *event.Commit.Duration
				stats.CommitsTimed++
			}
		}

		// Count errors
		if event.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

// recordVSync folds one blank into the display's interval tracking.
// Kernel timestamps are preferred over envelope timestamps; the latter
// include dispatch latency.
func (ds *DisplayStats) recordVSync(event log.Event) {
	ds.VSyncs++
	ts := event.Timestamp
	if event.VSync.Hardware != 0 {
		ts = time.Unix(0, event.VSync.Hardware)
	}
	if !ds.lastVSync.IsZero() {
		interval := ts.Sub(ds.lastVSync)
		if interval > 0 {
			ds.intervals++
			ds.intervalSum += interval
			if ds.intervalMin == 0 || interval < ds.intervalMin {
				ds.intervalMin = interval
			}
			if interval > ds.intervalMax {
				ds.intervalMax = interval
			}
		}
	}
	ds.lastVSync = ts
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Display Pipeline Trace Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by category
	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryDiscovery, log.CategoryConfig, log.CategoryFrame, log.CategoryEvent, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Frame lifecycle
	if len(stats.FrameActions) > 0 {
		fmt.Fprintln(w, "Frame Lifecycle:")
		for _, action := range []log.FrameAction{log.FrameQueued, log.FrameDropped, log.FramePresented, log.FrameReleased} {
			if count := stats.FrameActions[action]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", action.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	// Commits
	if stats.Commits > 0 {
		rate := float64(stats.CommitFailures) / float64(stats.Commits) * 100
		fmt.Fprintf(w, "Commits: %d (%d failed, %.1f%% failure rate)\n",
			stats.Commits, stats.CommitFailures, rate)
		if stats.CommitsTimed > 0 {
			avg := stats.CommitTime / time.Duration(stats.CommitsTimed)
			fmt.Fprintf(w, "Commit Time: avg %s\n", formatDuration(avg))
		}
		fmt.Fprintln(w)
	}

	// Sessions
	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n",
				shortenSessionID(s.id), s.stats.Events, duration)
		}
	}

	// Displays
	if len(stats.Displays) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Displays: %d\n", len(stats.Displays))

		indices := make([]int, 0, len(stats.Displays))
		for idx := range stats.Displays {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		for _, idx := range indices {
			ds := stats.Displays[idx]
			fmt.Fprintf(w, "  Display %d: %d events", idx, ds.Events)
			if ds.Presented > 0 || ds.Dropped > 0 {
				fmt.Fprintf(w, ", %d presented, %d dropped", ds.Presented, ds.Dropped)
			}
			fmt.Fprintln(w)
			if ds.ModeSets > 0 {
				fmt.Fprintf(w, "    Mode sets: %d\n", ds.ModeSets)
			}
			if ds.VSyncs > 0 {
				fmt.Fprintf(w, "    VSync: %d events", ds.VSyncs)
				if ds.intervals > 0 {
					avg := ds.intervalSum / time.Duration(ds.intervals)
					fmt.Fprintf(w, ", interval min/avg/max %s/%s/%s",
						ds.intervalMin.Round(time.Microsecond),
						avg.Round(time.Microsecond),
						ds.intervalMax.Round(time.Microsecond))
				}
				fmt.Fprintln(w)
			}
		}
	}

	// Errors
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
