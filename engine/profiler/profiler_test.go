package profiler

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
)

func report(outcomes ...stage.Outcome) scheduler.FrameReport {
	return scheduler.FrameReport{
		Stages: []stage.Report{
			{Stage: "lut", Kind: stage.KindLUT, Passes: []stage.PassReport{{Pass: "transmittance", Outcome: outcomes[0]}}},
			{Stage: "post_process", Kind: stage.KindPostProcess, Passes: []stage.PassReport{{Pass: "aerial_perspective/main", Outcome: outcomes[1]}}},
		},
		Duration: time.Millisecond,
	}
}

func TestRecordTable(t *testing.T) {
	p := NewProfiler()
	p.Record(report(stage.OutcomeLoading, stage.OutcomeLoading))
	p.Record(report(stage.OutcomeRecorded, stage.OutcomeAbsent))
	p.Record(report(stage.OutcomeRecorded, stage.OutcomeRecorded))

	var buf bytes.Buffer
	p.Table(&buf)
	out := buf.String()

	type spec struct {
		row []string
	}
	specList := []spec{
		{row: []string{"lut", "transmittance", "2", "1", "0"}},
		{row: []string{"post_process", "aerial_perspective/main", "1", "1", "1"}},
	}
	lines := strings.Split(out, "\n")
	for i, s := range specList {
		found := false
		for _, line := range lines {
			fields := strings.FieldsFunc(line, func(r rune) bool { return r == '|' || r == ' ' })
			if strings.Join(fields, ",") == strings.Join(s.row, ",") {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("[spec %d] expected row %v in\n%s", i, s.row, out)
		}
	}
	if !strings.Contains(out, stage.OutcomeRecorded.String()) {
		t.Fatalf("expected outcome headers in\n%s", out)
	}

	missing := p.Missing()
	if len(missing) != 1 || missing[0] != "aerial_perspective/main" {
		t.Fatalf("expected the aerial perspective pass missing; got %v", missing)
	}
}

func TestTickInterval(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProfiler()
	p.clock = func() time.Time { return now }
	p.lastTime = now
	p.SetInterval(time.Second)
	p.SetInterval(-1)

	p.Record(report(stage.OutcomeRecorded, stage.OutcomeAbsent))
	now = now.Add(500 * time.Millisecond)
	if p.Tick() {
		t.Fatal("expected no stats before the interval elapsed")
	}

	now = now.Add(600 * time.Millisecond)
	if !p.Tick() {
		t.Fatal("expected stats once the interval elapsed")
	}
	if p.frameCount != 0 || p.recorded != 0 || len(p.Missing()) != 0 {
		t.Fatalf("expected the interval reset; got %d frames, %d reports, missing %v", p.frameCount, p.recorded, p.Missing())
	}
}
