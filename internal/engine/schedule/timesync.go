package schedule

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ConserveLee/snapbuy/internal/constants"
	"github.com/ConserveLee/snapbuy/internal/logger"
)

// DefaultTimeServers answer HEAD requests with a Date header.
var DefaultTimeServers = []string{
	"https://www.taobao.com",
	"https://www.baidu.com",
	"https://www.cloudflare.com",
}

// TimeSync is a Clock corrected by the offset between local time and a set
// of HTTP servers' Date headers. Until Sync succeeds it reads local time.
type TimeSync struct {
	Servers   []string
	Client    *http.Client
	MaxOffset time.Duration // Offsets larger than this are discarded

	// Date headers only carry whole seconds. Each server is polled every
	// EdgeStep for up to EdgeWindow to catch the moment its second ticks
	// over; zero EdgeWindow takes a single sample instead.
	EdgeWindow time.Duration
	EdgeStep   time.Duration

	mu     sync.RWMutex
	offset time.Duration
	synced bool

	log *logger.AppLogger
}

// NewTimeSync creates an unsynchronised clock
func NewTimeSync(servers []string, log *logger.AppLogger) *TimeSync {
	if len(servers) == 0 {
		servers = DefaultTimeServers
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TimeSync{
		Servers:    servers,
		Client:     &http.Client{Timeout: constants.TimeSyncTimeout},
		MaxOffset:  constants.TimeSyncMaxOffset,
		EdgeWindow: constants.TimeSyncEdgeWindow,
		EdgeStep:   constants.TimeSyncEdgeStep,
		log:        log,
	}
}

// Sync queries every server and stores the average offset.
func (ts *TimeSync) Sync(ctx context.Context) error {
	var total time.Duration
	ok := 0

	for _, server := range ts.Servers {
		offset, err := ts.serverOffset(ctx, server)
		if err != nil {
			ts.log.Debug("Time sync failed for %s: %v", server, err)
			continue
		}
		if ts.MaxOffset > 0 && (offset > ts.MaxOffset || offset < -ts.MaxOffset) {
			ts.log.Warn("Ignoring %s: offset %s exceeds %s", server, offset, ts.MaxOffset)
			continue
		}
		ts.log.Debug("Time offset from %s: %s", server, offset)
		total += offset
		ok++
	}

	if ok == 0 {
		return fmt.Errorf("failed to sync time with any of %d servers", len(ts.Servers))
	}

	ts.mu.Lock()
	ts.offset = total / time.Duration(ok)
	ts.synced = true
	ts.mu.Unlock()

	ts.log.Info("Clock synchronised (offset %s from %d servers)", ts.Offset(), ok)
	return nil
}

// dateSample is one Date header and the local instant it most likely
// corresponds to.
type dateSample struct {
	date  time.Time
	local time.Time // Midpoint of the round trip
}

// serverOffset estimates server time minus local time. The server's second
// boundary is located by polling until the Date header changes; when no
// change is seen the header is assumed to be stamped mid-second.
func (ts *TimeSync) serverOffset(ctx context.Context, url string) (time.Duration, error) {
	first, err := ts.sample(ctx, url)
	if err != nil {
		return 0, err
	}

	prev := first
	deadline := first.local.Add(ts.EdgeWindow)
	for prev.local.Before(deadline) {
		if err := sleep(ctx, ts.EdgeStep); err != nil {
			return 0, err
		}
		cur, err := ts.sample(ctx, url)
		if err != nil {
			break
		}
		if cur.date.After(prev.date) {
			edge := prev.local.Add(cur.local.Sub(prev.local) / 2)
			return cur.date.Sub(edge), nil
		}
		prev = cur
	}

	return first.date.Add(time.Second / 2).Sub(first.local), nil
}

func (ts *TimeSync) sample(ctx context.Context, url string) (dateSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return dateSample{}, err
	}

	before := time.Now()
	resp, err := ts.Client.Do(req)
	if err != nil {
		return dateSample{}, err
	}
	defer resp.Body.Close()
	after := time.Now()

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return dateSample{}, fmt.Errorf("no Date header in response")
	}
	serverTime, err := http.ParseTime(dateHeader)
	if err != nil {
		return dateSample{}, fmt.Errorf("failed to parse Date header: %w", err)
	}
	return dateSample{date: serverTime, local: before.Add(after.Sub(before) / 2)}, nil
}

// Now returns local time adjusted by the synchronised offset
func (ts *TimeSync) Now() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().Add(ts.offset)
}

// Offset returns the current correction
func (ts *TimeSync) Offset() time.Duration {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// IsSynced reports whether a Sync has succeeded
func (ts *TimeSync) IsSynced() bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.synced
}
