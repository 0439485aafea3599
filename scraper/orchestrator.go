package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"inventory_watch/config"
	"inventory_watch/export"
	"inventory_watch/extract"
	"inventory_watch/filter"
	"inventory_watch/ledger"
	"inventory_watch/logging"
	"inventory_watch/models"
	"inventory_watch/normalize"
	"inventory_watch/notify"
	"inventory_watch/search"
)

var (
	ErrRunInProgress = errors.New("search already running")
	ErrPaused        = errors.New("searches are paused")
)

// AuditStore records runs, their log lines and per-target outcomes.
type AuditStore interface {
	CreateRun(run *models.RunRecord) (int64, error)
	UpdateRun(run *models.RunRecord) error
	Log(runID *int64, level models.LogLevel, message, locationID string) error
	SaveTargetResult(r *models.TargetResult) error
	ParseCommandParams(cmd *models.Command) (*models.CommandParams, error)
}

// Mirror copies a finished run and its new vehicles to a secondary store.
type Mirror interface {
	MirrorRun(ctx context.Context, run models.SearchRun, entries []models.LedgerEntry) error
}

type Publisher interface {
	Publish(ctx context.Context, doc models.LedgerDocument) (export.Dashboard, error)
}

// RunResult is what one pipeline pass produced.
type RunResult struct {
	Targets           int
	TargetsFailed     int
	Found             int
	Accepted          int
	New               []models.LedgerEntry
	Notified          bool
	NoMatchesNotified bool
	Pruned            int
	Run               models.SearchRun
}

type Orchestrator struct {
	cfg      *config.Config
	ledger   *ledger.Store
	fetcher  Fetcher
	notifier notify.Notifier

	audit     AuditStore
	mirror    Mirror
	publisher Publisher

	runMu  sync.Mutex
	paused atomic.Bool
	now    func() time.Time
}

func NewOrchestrator(cfg *config.Config, store *ledger.Store, fetcher Fetcher, notifier notify.Notifier) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		ledger:   store,
		fetcher:  fetcher,
		notifier: notifier,
		now:      time.Now,
	}
}

// SetSinks wires the optional audit store, database mirror and dashboard
// publisher. Any of them may be nil.
func (o *Orchestrator) SetSinks(audit AuditStore, mirror Mirror, publisher Publisher) {
	o.audit = audit
	o.mirror = mirror
	o.publisher = publisher
}

// RunAll performs one full search: every target is fetched and extracted in
// order, the merged records are filtered once, and novel vehicles are added to
// the ledger and handed to the notifier.
func (o *Orchestrator) RunAll(ctx context.Context) (*RunResult, error) {
	if o.paused.Load() {
		logging.Infof("searches paused, skipping run")
		return nil, ErrPaused
	}
	if !o.runMu.TryLock() {
		logging.Warnf("search already running, skipping trigger")
		return nil, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	record := &models.RunRecord{StartedAt: o.now(), Status: models.RunStatusRunning}
	if o.audit != nil {
		id, err := o.audit.CreateRun(record)
		if err != nil {
			logging.Warnf("audit: create run: %v", err)
		}
		record.ID = id
	}

	result, err := o.run(ctx, record)

	finished := o.now()
	record.FinishedAt = &finished
	record.Status = models.RunStatusCompleted
	if err != nil {
		record.Status = models.RunStatusFailed
		record.ErrorsCount++
		o.log(record.ID, models.LogLevelError, fmt.Sprintf("Run failed: %v", err), "")
	}
	if o.audit != nil && record.ID != 0 {
		if uerr := o.audit.UpdateRun(record); uerr != nil {
			logging.Warnf("audit: update run: %v", uerr)
		}
	}
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, record *models.RunRecord) (*RunResult, error) {
	criteria := o.cfg.Criteria
	targets, err := search.Enumerate(o.cfg.Locations, criteria)
	if err != nil {
		return nil, err
	}

	res := &RunResult{Targets: len(targets)}
	record.TargetsTotal = len(targets)
	o.log(record.ID, models.LogLevelInfo, fmt.Sprintf("Starting search over %d targets", len(targets)), "")

	normalizer := normalize.New(criteria.Make, criteria.Models, criteria.Trims)
	var records []models.VehicleRecord
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		found, ok := o.searchTarget(ctx, record.ID, target, criteria, normalizer)
		if !ok {
			res.TargetsFailed++
		}
		records = append(records, found...)
	}
	record.TargetsFailed = res.TargetsFailed
	record.ErrorsCount = res.TargetsFailed
	if res.Targets > 0 && res.TargetsFailed == res.Targets {
		o.log(record.ID, models.LogLevelWarn, fmt.Sprintf("All %d targets failed to fetch", res.TargetsFailed), "")
	}

	accepted, rejected := filter.Criteria{MinYear: criteria.MinYear}.Apply(records)
	res.Found = len(records)
	res.Accepted = len(accepted)
	record.VehiclesFound = res.Found
	record.VehiclesAccepted = res.Accepted
	if rejected > 0 {
		logging.Debugf("%d vehicles below minimum year %d", rejected, criteria.MinYear)
	}

	fresh := o.ledger.NewVehicles(accepted)
	if o.cfg.EnrichDetails {
		o.enrich(ctx, fresh)
	}
	if _, err := o.ledger.Add(fresh); err != nil {
		return res, err
	}
	res.New = fresh
	record.VehiclesNew = len(fresh)
	o.log(record.ID, models.LogLevelInfo,
		fmt.Sprintf("Found %d vehicles, %d matching, %d new", res.Found, res.Accepted, len(fresh)), "")

	if len(fresh) > 0 {
		res.Notified = o.notifyNew(ctx, record.ID, fresh)
	} else if o.ledger.ShouldSendNoMatchesNotification(o.cfg.Ledger.NoMatchesFrequency) {
		res.NoMatchesNotified = o.notifyNoMatches(ctx, record.ID, targets)
	}

	run, err := o.ledger.RecordRun(ledger.RunSummary{
		VehiclesFound:             res.Accepted,
		NewVehicles:               len(fresh),
		NotificationsSent:         res.Notified,
		NoMatchesNotificationSent: res.NoMatchesNotified,
	})
	res.Run = run
	if err != nil {
		return res, err
	}

	if o.mirror != nil {
		if err := o.mirror.MirrorRun(ctx, run, fresh); err != nil {
			o.log(record.ID, models.LogLevelWarn, fmt.Sprintf("Mirror failed: %v", err), "")
		}
	}

	if days := o.cfg.Ledger.RetentionDays; days > 0 {
		pruned, err := o.ledger.Prune(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			o.log(record.ID, models.LogLevelWarn, fmt.Sprintf("Prune failed: %v", err), "")
		}
		res.Pruned = pruned
	}

	o.publish(ctx, record.ID)
	return res, nil
}

// searchTarget fetches one page and returns its normalized records. ok is false
// when the fetch failed.
func (o *Orchestrator) searchTarget(ctx context.Context, runID int64, target models.SearchTarget,
	criteria config.CriteriaConfig, normalizer *normalize.Normalizer) ([]models.VehicleRecord, bool) {

	tr := &models.TargetResult{
		RunID:      runID,
		LocationID: target.LocationID,
		Kind:       string(target.Kind),
		Model:      target.Model,
		URL:        target.URL,
		FetchedAt:  o.now(),
	}
	defer o.saveTargetResult(tr)

	doc, err := o.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		tr.Error = err.Error()
		o.log(runID, models.LogLevelError, fmt.Sprintf("Fetch %s %s failed: %v", target.Kind, target.Model, err), target.LocationID)
		return nil, false
	}

	kw := extract.KeywordsFor(criteria.Make, target.Model, criteria.Models, criteria.Trims)
	var opts []extract.Option
	if logging.Verbose() {
		opts = append(opts, extract.WithObserver(func(strategy string, found int) {
			logging.Debugf("%s %s %s: %s -> %d", target.LocationID, target.Kind, target.Model, strategy, found)
		}))
	}
	candidates := extract.NewEngine(kw, opts...).Extract(doc, target.URL)
	tr.Candidates = len(candidates)
	if len(candidates) > 0 {
		tr.Strategy = candidates[0].Strategy
	}

	src := normalize.Source{
		Dealership: target.LocationName,
		Location:   target.LocationLabel,
		Kind:       target.Kind,
		Model:      target.Model,
	}
	records := make([]models.VehicleRecord, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, normalizer.Normalize(c, src))
	}
	o.log(runID, models.LogLevelInfo,
		fmt.Sprintf("%s %s: %d candidates", target.Kind, target.Model, len(candidates)), target.LocationID)
	return records, true
}

// enrich fills price, VIN and color of novel vehicles from their detail pages.
// IDs are already assigned and stay unchanged.
func (o *Orchestrator) enrich(ctx context.Context, entries []models.LedgerEntry) {
	for i := range entries {
		e := &entries[i]
		if e.Price != nil || e.URLIsPage || e.URL == "" {
			continue
		}
		doc, err := o.fetcher.Fetch(ctx, e.URL)
		if err != nil {
			logging.Warnf("enrich %s: %v", e.ID, err)
			continue
		}
		d := extract.ParseDetails(doc)
		if e.Price == nil {
			e.Price = models.StringPtr(d.Price)
		}
		if e.VIN == nil {
			e.VIN = models.StringPtr(d.VIN)
		}
		if e.Color == nil {
			e.Color = models.StringPtr(d.Color)
		}
	}
}

func (o *Orchestrator) notifyNew(ctx context.Context, runID int64, fresh []models.LedgerEntry) bool {
	if o.notifier == nil {
		return false
	}
	err := o.notifier.NotifyNew(ctx, fresh)
	return o.checkDelivery(runID, "new vehicles", err)
}

func (o *Orchestrator) notifyNoMatches(ctx context.Context, runID int64, targets []models.SearchTarget) bool {
	if o.notifier == nil {
		return false
	}
	links := make([]string, 0, len(targets))
	for _, t := range targets {
		links = append(links, t.URL)
	}
	err := o.notifier.NotifyNoMatches(ctx, notify.NoMatches{Criteria: o.cfg.Criteria, SearchLinks: links})
	return o.checkDelivery(runID, "no matches", err)
}

func (o *Orchestrator) checkDelivery(runID int64, what string, err error) bool {
	switch {
	case errors.Is(err, notify.ErrNotConfigured):
		logging.Debugf("no notification channels configured")
		return false
	case err == nil:
		return true
	case notify.Delivered(err):
		o.log(runID, models.LogLevelWarn, fmt.Sprintf("Notification (%s) partially failed: %v", what, err), "")
		return true
	default:
		o.log(runID, models.LogLevelError, fmt.Sprintf("Notification (%s) failed: %v", what, err), "")
		return false
	}
}

func (o *Orchestrator) publish(ctx context.Context, runID int64) {
	if o.publisher == nil {
		return
	}
	if _, err := o.publisher.Publish(ctx, o.ledger.Document()); err != nil {
		o.log(runID, models.LogLevelWarn, fmt.Sprintf("Dashboard publish failed: %v", err), "")
	}
}

// Prune drops ledger entries older than days and republishes the dashboard.
func (o *Orchestrator) Prune(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = o.cfg.Ledger.RetentionDays
	}
	removed, err := o.ledger.Prune(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return 0, err
	}
	logging.Infof("pruned %d vehicles older than %d days", removed, days)
	if removed > 0 {
		o.publish(ctx, 0)
	}
	return removed, nil
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params := &models.CommandParams{}
	if o.audit != nil {
		p, err := o.audit.ParseCommandParams(cmd)
		if err != nil {
			return err
		}
		params = p
	}

	switch cmd.Command {
	case models.CmdSearchNow:
		_, err := o.RunAll(ctx)
		return err
	case models.CmdPrune:
		_, err := o.Prune(ctx, params.RetentionDays)
		return err
	case models.CmdPause:
		o.paused.Store(true)
		logging.Infof("searches paused")
	case models.CmdResume:
		o.paused.Store(false)
		logging.Infof("searches resumed")
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) log(runID int64, level models.LogLevel, message, locationID string) {
	line := message
	if locationID != "" {
		line = locationID + ": " + message
	}
	switch level {
	case models.LogLevelError:
		logging.Errorf("%s", line)
	case models.LogLevelWarn:
		logging.Warnf("%s", line)
	case models.LogLevelDebug:
		logging.Debugf("%s", line)
	default:
		logging.Infof("%s", line)
	}

	if o.audit == nil {
		return
	}
	var id *int64
	if runID != 0 {
		id = &runID
	}
	if err := o.audit.Log(id, level, message, locationID); err != nil {
		logging.Warnf("audit: log: %v", err)
	}
}

func (o *Orchestrator) saveTargetResult(tr *models.TargetResult) {
	if o.audit == nil || tr.RunID == 0 {
		return
	}
	if err := o.audit.SaveTargetResult(tr); err != nil {
		logging.Warnf("audit: target result: %v", err)
	}
}
