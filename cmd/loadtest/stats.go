package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const scenarioSeries = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// report итог прогона. DuplicateNumbers > 0 означает, что сервис выдал один номер дважды.
type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	NumberConflicts   int64                   `json:"number_conflicts"`
	DuplicateNumbers  int64                   `json:"duplicate_numbers"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// series копит результаты одного RPC или сценария целиком.
type series struct {
	ok, failed int64
	codes      map[codes.Code]int64
	samples    []time.Duration
}

func (s *series) report() methodReport {
	byName := make(map[string]int64, len(s.codes))
	for c, n := range s.codes {
		byName[c.String()] = n
	}
	return methodReport{
		Calls:     s.ok + s.failed,
		Success:   s.ok,
		Failed:    s.failed,
		ErrorRate: share(s.failed, s.ok+s.failed),
		Codes:     byName,
		LatencyMs: summarizeLatency(s.samples),
	}
}

// recorder потокобезопасно собирает статистику прогона.
type recorder struct {
	mu         sync.Mutex
	series     map[string]*series
	numbers    map[string]struct{}
	duplicates int64
}

func newRecorder() *recorder {
	return &recorder{
		series:  make(map[string]*series),
		numbers: make(map[string]struct{}),
	}
}

func (r *recorder) observe(name string, took time.Duration, err error) {
	code := status.Code(err)

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.series[name]
	if s == nil {
		s = &series{codes: make(map[codes.Code]int64)}
		r.series[name] = s
	}
	if code == codes.OK {
		s.ok++
	} else {
		s.failed++
	}
	s.codes[code]++
	s.samples = append(s.samples, took)
}

// sawNumber учитывает номер, выданный сервером.
func (r *recorder) sawNumber(number string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.numbers[number]; dup {
		r.duplicates++
		return
	}
	r.numbers[number] = struct{}{}
}

func (r *recorder) method(name string) (methodReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.series[name]
	if !ok {
		return methodReport{}, false
	}
	return s.report(), true
}

func (r *recorder) summarize(started time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := report{
		StartedAt:        started.UTC(),
		DurationSeconds:  elapsed.Seconds(),
		DuplicateNumbers: r.duplicates,
		Methods:          make(map[string]methodReport, len(r.series)),
	}
	for name, s := range r.series {
		rep.Methods[name] = s.report()
	}

	if sc, ok := rep.Methods[scenarioSeries]; ok {
		rep.TotalScenarios = sc.Calls
		rep.SuccessScenarios = sc.Success
		rep.FailedScenarios = sc.Failed
		rep.ErrorRate = sc.ErrorRate
		rep.ScenarioLatencyMs = sc.LatencyMs
	}
	if create, ok := rep.Methods["CreateSale"]; ok {
		rep.NumberConflicts = create.Codes[codes.AlreadyExists.String()]
	}
	if elapsed > 0 {
		rep.RPS = float64(rep.TotalScenarios) / elapsed.Seconds()
	}
	return rep
}

// summarizeLatency считает перцентили в миллисекундах с линейной интерполяцией.
func summarizeLatency(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}

	ms := make([]float64, len(samples))
	var total float64
	for i, d := range samples {
		ms[i] = float64(d.Microseconds()) / 1000
		total += ms[i]
	}
	slices.Sort(ms)

	return latencySummary{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: total / float64(len(ms)),
		P50: interpolate(ms, 0.50),
		P95: interpolate(ms, 0.95),
		P99: interpolate(ms, 0.99),
	}
}

func interpolate(sorted []float64, q float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(pos-float64(lo))
}

func share(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func printReport(w io.Writer, rep report, opts options) {
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		opts.mode, opts.describe(), rep.TotalScenarios, rep.SuccessScenarios, rep.FailedScenarios, rep.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f number_conflicts=%d duplicate_numbers=%d\n",
		rep.DurationSeconds, rep.RPS, rep.NumberConflicts, rep.DuplicateNumbers)
	l := rep.ScenarioLatencyMs
	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		l.Min, l.Avg, l.P50, l.P95, l.P99, l.Max)

	names := make([]string, 0, len(rep.Methods))
	for name := range rep.Methods {
		if name != scenarioSeries {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		m := rep.Methods[name]
		fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95)
	}
}

// saveReport пишет отчёт только внутрь текущего каталога.
func saveReport(path string, rep report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o644)
}
