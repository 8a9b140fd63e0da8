package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lockstep"
	"github.com/aretw0/lockstep/pkg/adapters/memory"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/scheduler"
)

// DemoStep is the state observed after one demo step.
type DemoStep struct {
	Name     string
	Open     []string
	Policies map[string]domain.PolicyID
	Err      error
}

// DemoReport is the outcome of RunDemo.
type DemoReport struct {
	Steps    []DemoStep
	Events   []domain.ActionEvent
	Orphaned int // policies still registered in the gateway at the end
	start    time.Time
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ActionEvent
}

func (r *recorder) record(_ context.Context, e *domain.ActionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
}

func (r *recorder) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{OnQueued: r.record, OnGranted: r.record, OnSettled: r.record}
}

// RunDemo drives the two-modal-dialog scenario against in-memory collaborators.
func RunDemo(ctx context.Context, latency time.Duration) (*DemoReport, error) {
	rec := &recorder{}
	store := memory.NewDialogStore(memory.WithModalDialogs("a", "b"), memory.WithLatency(latency))
	gw := memory.NewPolicyGateway()

	sys, err := lockstep.New(
		lockstep.WithDialogStore(store),
		lockstep.WithPolicyGateway(gw),
		lockstep.WithLifecycleHooks(rec.hooks()),
	)
	if err != nil {
		return nil, err
	}

	report := &DemoReport{start: time.Now()}
	step := func(name string, run func() error) {
		err := run()
		report.Steps = append(report.Steps, DemoStep{
			Name:     name,
			Open:     store.OpenDialogs(),
			Policies: sys.Dialogs.Policies(),
			Err:      err,
		})
	}

	d := sys.Dialogs
	step("open a and b (modal) concurrently", func() error {
		return scheduler.WaitAll(ctx, d.Open(ctx, "a", &domain.DismissalPolicy{Escape: true}), d.Open(ctx, "b", nil))
	})
	step("open about (non-modal)", func() error { return d.OpenDialog(ctx, "about", nil) })
	step("close a", func() error { return d.CloseDialog(ctx, "a") })
	step("close x (never opened)", func() error { return d.CloseDialog(ctx, "x") })
	step("close all dialogs", func() error { return d.CloseAllDialogs(ctx) })
	step("reset", func() error { return d.OnReset(ctx) })

	if err := sys.Shutdown(ctx); err != nil {
		return nil, err
	}

	registered, err := gw.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	report.Orphaned = len(registered)

	rec.mu.Lock()
	report.Events = append([]domain.ActionEvent(nil), rec.events...)
	rec.mu.Unlock()
	sort.SliceStable(report.Events, func(i, j int) bool {
		return report.Events[i].Timestamp.Before(report.Events[j].Timestamp)
	})
	return report, nil
}

// Markdown renders the report.
func (r *DemoReport) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# lockstep demo\n\n")

	sb.WriteString("## Steps\n\n")
	sb.WriteString("| # | Step | Open dialogs | Policy record | Result |\n")
	sb.WriteString("|---|------|--------------|---------------|--------|\n")
	for i, s := range r.Steps {
		result := "ok"
		if s.Err != nil {
			result = s.Err.Error()
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n", i+1, mdCell(s.Name), mdCell(strings.Join(s.Open, ", ")), mdCell(formatRecord(s.Policies)), mdCell(result))
	}

	sb.WriteString("\n## Timeline\n\n")
	sb.WriteString("| t (ms) | Event | Action | Transfer | Waited (ms) |\n")
	sb.WriteString("|--------|-------|--------|----------|-------------|\n")
	for _, e := range r.Events {
		fmt.Fprintf(&sb, "| %.1f | %s | %s | %t | %.1f |\n",
			ms(e.Timestamp.Sub(r.start)), e.Type, mdCell(e.Action), e.Transfer, ms(e.Waited))
	}

	fmt.Fprintf(&sb, "\nPolicies still registered in the gateway after close-all and reset: **%d**\n", r.Orphaned)
	return sb.String()
}

// Render writes the report through render.
func (r *DemoReport) Render(w io.Writer, render func(string) (string, error)) error {
	out, err := render(r.Markdown())
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func formatRecord(m map[string]domain.PolicyID) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
