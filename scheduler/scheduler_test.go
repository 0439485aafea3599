package scheduler

import (
	"context"
	"testing"
	"time"

	"inventory_watch/config"
	"inventory_watch/models"
	"inventory_watch/scraper"
)

var weekdays = config.BusinessHours{
	StartHour: 9,
	EndHour:   18,
	Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
}

func TestInBusinessHours(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday 9am", time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local), true},
		{"friday 5pm", time.Date(2026, 3, 6, 17, 0, 0, 0, time.Local), true},
		{"friday 6pm", time.Date(2026, 3, 6, 18, 0, 0, 0, time.Local), false},
		{"tuesday 8:59", time.Date(2026, 3, 3, 8, 59, 0, 0, time.Local), false},
		{"saturday noon", time.Date(2026, 3, 7, 12, 0, 0, 0, time.Local), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InBusinessHours(tt.at, weekdays); got != tt.want {
				t.Fatalf("InBusinessHours(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}

	if !InBusinessHours(time.Date(2026, 3, 7, 3, 0, 0, 0, time.Local), config.BusinessHours{}) {
		t.Fatalf("zero business hours should allow every time")
	}
}

type fakeRunner struct {
	runs     int
	commands []models.CommandType
}

func (r *fakeRunner) RunAll(context.Context) (*scraper.RunResult, error) {
	r.runs++
	return &scraper.RunResult{}, nil
}

func (r *fakeRunner) HandleCommand(_ context.Context, cmd *models.Command) error {
	r.commands = append(r.commands, cmd.Command)
	return nil
}

type fakeQueue struct {
	pending   []models.Command
	processed []int64
}

func (q *fakeQueue) GetPendingCommands() ([]models.Command, error) {
	var out []models.Command
	for _, c := range q.pending {
		done := false
		for _, id := range q.processed {
			done = done || id == c.ID
		}
		if !done {
			out = append(out, c)
		}
	}
	return out, nil
}

func (q *fakeQueue) MarkCommandProcessed(id int64) error {
	q.processed = append(q.processed, id)
	return nil
}

func TestScheduledRun_GuardedButTriggerNowIsNot(t *testing.T) {
	runner := &fakeRunner{}
	s := New(config.SchedulerConfig{BusinessHours: weekdays}, runner, nil)

	s.now = func() time.Time { return time.Date(2026, 3, 7, 12, 0, 0, 0, time.Local) }
	s.scheduledRun(context.Background())
	if runner.runs != 0 {
		t.Fatalf("weekend scheduled run should be skipped")
	}

	if _, err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if runner.runs != 1 {
		t.Fatalf("manual trigger should run, got %d runs", runner.runs)
	}

	s.now = func() time.Time { return time.Date(2026, 3, 2, 13, 0, 0, 0, time.Local) }
	s.scheduledRun(context.Background())
	if runner.runs != 2 {
		t.Fatalf("weekday scheduled run should proceed, got %d runs", runner.runs)
	}
}

func TestProcessCommands(t *testing.T) {
	runner := &fakeRunner{}
	queue := &fakeQueue{pending: []models.Command{
		{ID: 1, Command: models.CmdPause},
		{ID: 2, Command: models.CmdSearchNow},
	}}
	s := New(config.SchedulerConfig{}, runner, queue)

	s.processCommands(context.Background())
	s.processCommands(context.Background())

	if len(runner.commands) != 2 || runner.commands[0] != models.CmdPause {
		t.Fatalf("unexpected commands handled: %v", runner.commands)
	}
	if len(queue.processed) != 2 {
		t.Fatalf("expected both commands marked processed, got %v", queue.processed)
	}
}

func TestNextRuns_DefaultSchedule(t *testing.T) {
	from := time.Date(2026, 3, 6, 14, 0, 0, 0, time.Local) // Friday
	runs, err := NextRuns("0 9,13,17 * * 1-5", from, 3)
	if err != nil {
		t.Fatalf("NextRuns: %v", err)
	}
	want := []time.Time{
		time.Date(2026, 3, 6, 17, 0, 0, 0, time.Local),
		time.Date(2026, 3, 9, 9, 0, 0, 0, time.Local),
		time.Date(2026, 3, 9, 13, 0, 0, 0, time.Local),
	}
	for i := range want {
		if !runs[i].Equal(want[i]) {
			t.Fatalf("run %d = %s, want %s", i, runs[i], want[i])
		}
	}

	if _, err := NextRuns("not a cron", from, 1); err == nil {
		t.Fatalf("expected error for invalid expression")
	}
}
