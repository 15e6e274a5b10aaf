// Package profiler reports frame rate, memory and sky pass statistics through the engine log.
package profiler

import (
	"bytes"
	"io"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/log"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/olekukonko/tablewriter"
)

var logger = log.New("profiler")

// passStats counts the outcomes of one pass over an interval.
type passStats struct {
	stage    string
	outcomes [3]int
}

// Profiler tracks frame rate, memory statistics and the outcome of every sky pass.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	clock          func() time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	passes     map[string]*passStats
	order      []string
	recordTime time.Duration
	recorded   int
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		clock:          time.Now,
		passes:         make(map[string]*passStats),
	}
}

// SetInterval changes how often statistics are logged.
func (p *Profiler) SetInterval(interval time.Duration) {
	if interval > 0 {
		p.updateInterval = interval
	}
}

// Record adds the outcome of every pass of one sky frame to the current interval.
//
// Parameters:
//   - report: the frame report returned by the scheduler
func (p *Profiler) Record(report scheduler.FrameReport) {
	for _, s := range report.Stages {
		for _, pass := range s.Passes {
			ps, ok := p.passes[pass.Pass]
			if !ok {
				ps = &passStats{stage: s.Stage}
				p.passes[pass.Pass] = ps
				p.order = append(p.order, pass.Pass)
			}
			if int(pass.Outcome) < len(ps.outcomes) {
				ps.outcomes[pass.Outcome]++
			}
		}
	}
	p.recordTime += report.Duration
	p.recorded++
}

// Table writes the pass outcome counts of the current interval, one row per pass in
// first-seen order.
//
// Parameters:
//   - w: the destination
func (p *Profiler) Table(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Stage", "Pass", stage.OutcomeRecorded.String(), stage.OutcomeLoading.String(), stage.OutcomeAbsent.String()})
	for _, name := range p.order {
		ps := p.passes[name]
		table.Append([]string{
			ps.stage,
			name,
			strconv.Itoa(ps.outcomes[stage.OutcomeRecorded]),
			strconv.Itoa(ps.outcomes[stage.OutcomeLoading]),
			strconv.Itoa(ps.outcomes[stage.OutcomeAbsent]),
		})
	}
	table.Render()
}

// Missing returns the passes skipped as Absent at least once in the current interval, sorted.
func (p *Profiler) Missing() []string {
	var out []string
	for name, ps := range p.passes {
		if ps.outcomes[stage.OutcomeAbsent] > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory
// and the sky pass table.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.clock()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: Bytes of allocated heap objects (live memory)
	// Sys: Total bytes of memory obtained from the OS (actual process footprint)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	var record time.Duration
	if p.recorded > 0 {
		record = p.recordTime / time.Duration(p.recorded)
	}
	logger.Noticef("FPS: %.2f | Sky record: %s | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		fps, record, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)
	if len(p.order) > 0 {
		var buf bytes.Buffer
		p.Table(&buf)
		logger.Noticef("sky passes over %s\n%s", elapsed.Round(time.Millisecond), buf.String())
	}

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.reset()
	return true
}

func (p *Profiler) reset() {
	clear(p.passes)
	p.order = p.order[:0]
	p.recordTime = 0
	p.recorded = 0
}
