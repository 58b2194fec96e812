package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/logging"
	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/ops"
	"github.com/fintrack-app/fintrack/backend/internal/queue"
	"github.com/fintrack-app/fintrack/backend/internal/remote"
	"github.com/fintrack-app/fintrack/backend/internal/store"
	"github.com/fintrack-app/fintrack/backend/internal/sync/conflict"
)

// State is the engine's position in the pass lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateAcquiringLock State = "acquiring-lock"
	StateDraining      State = "draining-queue"
	StatePulling       State = "pulling-server-state"
	StateAborted       State = "aborted"
	StateCircuitOpen   State = "circuit-open"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultPassTimeout      = 5 * time.Minute
	DefaultOpTimeout        = 60 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 60 * time.Second
	DefaultWindowMonths     = 12
	DefaultPageSize         = 500
)

// Config tunes a sync engine.
type Config struct {
	OwnerID          string
	PassTimeout      time.Duration
	OpTimeout        time.Duration
	MaxRetries       int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	WindowMonths     int
	PageSize         int
	LockPath         string // cross-process lock file, empty disables
}

func (c Config) withDefaults() Config {
	if c.PassTimeout <= 0 {
		c.PassTimeout = DefaultPassTimeout
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = queue.DefaultMaxRetries
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	if c.WindowMonths <= 0 {
		c.WindowMonths = DefaultWindowMonths
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return c
}

// Result summarizes one completed pass.
type Result struct {
	Drained   int           `json:"drained"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Conflicts int           `json:"conflicts"`
	Pulled    int           `json:"pulled"`
	Duration  time.Duration `json:"duration"`
}

// passHandle lets concurrent in-process callers join an in-flight pass
// instead of starting a second one.
type passHandle struct {
	done   chan struct{}
	result *Result
	err    error
}

// Engine replays the durable operation queue against the remote service
// and refreshes the local mirror from server state. One pass runs at a
// time; concurrent callers join the in-flight pass, and a file lock keeps
// separate processes out.
type Engine struct {
	cfg      Config
	queue    *queue.Queue
	mirror   *store.Mirror
	meta     *store.Meta
	remote   remote.Service
	detector *conflict.Detector
	passLock Mutex
	opLocks  *opLockRegistry
	logger   *logging.Logger
	now      func() time.Time

	mu       gosync.RWMutex
	state    State
	breaker  Breaker
	inflight *passHandle
	online   bool
	handler  EventHandler
	lastSync time.Time
	lastErr  error
}

// NewEngine assembles an engine over its storage and remote collaborators.
func NewEngine(cfg Config, q *queue.Queue, mirror *store.Mirror, meta *store.Meta, svc remote.Service) *Engine {
	cfg = cfg.withDefaults()
	var lock Mutex = nopMutex{}
	if cfg.LockPath != "" {
		lock = NewFileMutex(cfg.LockPath)
	}
	return &Engine{
		cfg:      cfg,
		queue:    q,
		mirror:   mirror,
		meta:     meta,
		remote:   svc,
		detector: conflict.NewDetector(svc),
		passLock: lock,
		opLocks:  newOpLockRegistry(cfg.OpTimeout),
		logger:   logging.Get(),
		now:      time.Now,
		state:    StateIdle,
		breaker:  NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		online:   true,
	}
}

// SetEventHandler registers the listener for sync events.
func (e *Engine) SetEventHandler(h EventHandler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// SetOnline records the connectivity signal. Sync attempts while offline
// fail fast without touching the queue.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	e.online = online
	e.mu.Unlock()
}

// IsOnline reports the last connectivity signal.
func (e *Engine) IsOnline() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.online
}

// State reports the engine's current lifecycle position.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastSync reports when the last pass completed successfully.
func (e *Engine) LastSync() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// LastError reports the most recent pass-level failure, nil after a
// successful pass.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// PendingOps reports how many operations are waiting to be replayed.
func (e *Engine) PendingOps(ctx context.Context) (int, error) {
	return e.queue.Size(ctx)
}

// SyncAll runs one full pass: drain the operation queue in order, then
// pull server state into the mirror. If a pass is already running in this
// process the call waits for it and returns its result.
func (e *Engine) SyncAll(ctx context.Context) (*Result, error) {
	now := e.now()

	e.mu.Lock()
	if !e.online {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncOffline, "sync skipped: offline")
	}
	b, allowed := e.breaker.Allow(now)
	e.breaker = b
	if !allowed {
		e.state = StateCircuitOpen
		e.mu.Unlock()
		return nil, apperrors.Newf(apperrors.ErrCircuitOpen,
			"circuit open after %d consecutive failures", b.Failures)
	}
	if h := e.inflight; h != nil {
		e.mu.Unlock()
		select {
		case <-h.done:
			return h.result, h.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h := &passHandle{done: make(chan struct{})}
	e.inflight = h
	e.state = StateAcquiringLock
	e.mu.Unlock()

	result, err := e.runPass(ctx)

	e.mu.Lock()
	if err != nil {
		// Cross-process contention is a skip, not a failure: the other
		// process is doing the work.
		if !apperrors.Is(err, apperrors.ErrSyncLocked) {
			e.breaker = e.breaker.Failure(e.now())
		}
		e.lastErr = err
		e.state = StateAborted
	} else {
		e.breaker = e.breaker.Success()
		e.lastSync = e.now()
		e.lastErr = nil
		e.state = StateIdle
	}
	h.result, h.err = result, err
	e.inflight = nil
	e.mu.Unlock()
	close(h.done)
	return result, err
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) runPass(ctx context.Context) (*Result, error) {
	locked, err := e.passLock.TryLock()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncLocked, "acquire sync lock", err)
	}
	if !locked {
		return nil, apperrors.New(apperrors.ErrSyncLocked, "another process holds the sync lock")
	}
	defer func() {
		if uerr := e.passLock.Unlock(); uerr != nil {
			e.logger.Warn("release sync lock", map[string]interface{}{"error": uerr.Error()})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.PassTimeout)
	defer cancel()

	start := e.now()
	res := &Result{}
	ids := NewIdentityMap()

	e.emit(EventPassStarted, map[string]interface{}{"owner_id": e.cfg.OwnerID})
	e.setState(StateDraining)

	if err := e.drain(ctx, ids, res); err != nil {
		res.Duration = e.now().Sub(start)
		e.emit(EventPassFailed, map[string]interface{}{"phase": "drain", "error": err.Error()})
		return res, err
	}

	e.setState(StatePulling)
	if err := e.pull(ctx, res); err != nil {
		res.Duration = e.now().Sub(start)
		e.emit(EventPassFailed, map[string]interface{}{"phase": "pull", "error": err.Error()})
		return res, err
	}

	res.Duration = e.now().Sub(start)
	e.emit(EventPassCompleted, map[string]interface{}{
		"drained":   res.Drained,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"conflicts": res.Conflicts,
		"pulled":    res.Pulled,
	})
	e.logger.Info("sync pass completed", map[string]interface{}{
		"drained": res.Drained,
		"failed":  res.Failed,
		"pulled":  res.Pulled,
	})
	return res, nil
}

// drain replays pending operations oldest first. An aborted drain leaves
// the current and remaining operations exactly as queued.
func (e *Engine) drain(ctx context.Context, ids *IdentityMap, res *Result) error {
	pending, err := e.queue.DequeueAll(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "load pending operations", err)
	}

	for _, op := range pending {
		if ctx.Err() != nil {
			return passAbort(ctx)
		}
		now := e.now()
		e.opLocks.sweep(now)
		if !e.opLocks.acquire(op.ID, now) {
			res.Skipped++
			continue
		}
		err := e.replayOne(ctx, op, ids, res)
		e.opLocks.release(op.ID)
		if err != nil {
			if ctx.Err() != nil {
				return passAbort(ctx)
			}
			if herr := e.recordOpFailure(ctx, op, err, res); herr != nil {
				return herr
			}
		}
	}
	return nil
}

// replayOne executes a single queued operation under its own timeout.
// A nil return means the operation reached a settled status: succeeded,
// vacuous, or terminally failed with bookkeeping already written.
func (e *Engine) replayOne(ctx context.Context, op *models.QueuedOperation, ids *IdentityMap, res *Result) error {
	payload, err := queue.DecodePayload(op)
	if err != nil {
		reason := apperrors.Wrap(apperrors.ErrMalformedPayload, "decode payload", err)
		if merr := e.queue.MarkFailed(ctx, op.ID, reason.Error()); merr != nil {
			return merr
		}
		res.Failed++
		e.emit(EventOpFailed, map[string]interface{}{"op_id": op.ID, "type": string(op.Type), "error": reason.Error()})
		return nil
	}

	ids.ResolvePayload(payload)

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	err = e.dispatch(opCtx, op, payload, ids, res)
	cancel()
	if err != nil {
		if opCtx.Err() != nil && ctx.Err() == nil {
			return apperrors.Wrap(apperrors.ErrSyncTimeout, fmt.Sprintf("%s timed out", op.Type), err)
		}
		return err
	}

	if merr := e.queue.MarkSucceeded(ctx, op.ID); merr != nil {
		return merr
	}
	res.Drained++
	return nil
}

// recordOpFailure classifies a replay error: terminal failures park the
// operation as failed, transient ones consume retry budget and stay queued.
func (e *Engine) recordOpFailure(ctx context.Context, op *models.QueuedOperation, opErr error, res *Result) error {
	if apperrors.IsTerminal(opErr) {
		if err := e.queue.MarkFailed(ctx, op.ID, opErr.Error()); err != nil {
			return err
		}
		res.Failed++
		e.emit(EventOpFailed, map[string]interface{}{"op_id": op.ID, "type": string(op.Type), "error": opErr.Error()})
		e.logger.ErrorWithCode("operation failed terminally", string(apperrors.CodeOf(opErr)), opErr,
			map[string]interface{}{"op_id": op.ID, "type": string(op.Type)})
		return nil
	}

	retries := op.Retries + 1
	if retries > e.cfg.MaxRetries {
		reason := apperrors.Wrap(apperrors.ErrRetryExhausted,
			fmt.Sprintf("gave up after %d attempts", retries), opErr)
		if err := e.queue.MarkFailed(ctx, op.ID, reason.Error()); err != nil {
			return err
		}
		res.Failed++
		e.emit(EventOpFailed, map[string]interface{}{"op_id": op.ID, "type": string(op.Type), "error": reason.Error()})
		return nil
	}
	if err := e.queue.MarkRetried(ctx, op.ID, retries); err != nil {
		return err
	}
	e.logger.Warn("operation will retry", map[string]interface{}{
		"op_id":   op.ID,
		"type":    string(op.Type),
		"retries": retries,
		"error":   opErr.Error(),
	})
	return nil
}

// dispatch routes a decoded payload to its remote call. On success any
// server-minted id has been recorded in ids and confirmed in the mirror.
func (e *Engine) dispatch(ctx context.Context, op *models.QueuedOperation, payload ops.Payload, ids *IdentityMap, res *Result) error {
	switch p := payload.(type) {
	case *ops.CreateTransactionPayload:
		return e.createTransaction(ctx, &p.Transaction, remote.ProcCreateTransaction, ids)

	case *ops.CreateRecurringPayload:
		return e.createRecurring(ctx, p, ids)

	case *ops.TransferPayload:
		return e.createTransfer(ctx, p, ids)

	case *ops.CreateAccountPayload:
		return e.createAccount(ctx, &p.Account, ids)

	case *ops.CreateCategoryPayload:
		return e.createCategory(ctx, &p.Category, ids)

	case *ops.EditTransactionPayload:
		return e.applyEdit(ctx, remote.TableTransactions, &p.Edit, res)

	case *ops.EditAccountPayload:
		return e.applyEdit(ctx, remote.TableAccounts, &p.Edit, res)

	case *ops.EditCategoryPayload:
		return e.applyEdit(ctx, remote.TableCategories, &p.Edit, res)

	case *ops.DeleteTransactionPayload:
		return e.applyDelete(ctx, remote.TableTransactions, &p.Delete)

	case *ops.DeleteAccountPayload:
		return e.applyDelete(ctx, remote.TableAccounts, &p.Delete)

	case *ops.DeleteCategoryPayload:
		return e.applyDelete(ctx, remote.TableCategories, &p.Delete)

	case *ops.CreateInstallmentSetPayload:
		return e.createInstallments(ctx, op, p, ids)

	case *ops.BulkImportTransactionsPayload:
		return e.bulkImportTransactions(ctx, op, p, ids)

	case *ops.BulkImportAccountsPayload:
		return e.bulkImportAccounts(ctx, op, p, ids)

	case *ops.BulkImportCategoriesPayload:
		return e.bulkImportCategories(ctx, op, p, ids)

	case *ops.ClearAllDataPayload:
		if _, err := e.remote.Invoke(ctx, remote.ProcClearAllData, p); err != nil {
			return err
		}
		return e.mirror.Purge(ctx, p.OwnerID)

	case *ops.SignOutPayload:
		_, err := e.remote.Invoke(ctx, remote.ProcSignOut, p)
		return err

	default:
		return apperrors.Newf(apperrors.ErrMalformedPayload, "no handler for operation type %s", op.Type)
	}
}

// requireResolved rejects a reference that is still a local placeholder.
// The creating operation may simply be later in the queue, so the error is
// transient and the operation retries.
func requireResolved(field string, id models.EntityID) error {
	if id.IsPending() {
		return apperrors.Newf(apperrors.ErrUnresolvedRef, "%s %s has no server id yet", field, id)
	}
	return nil
}

func (e *Engine) createTransaction(ctx context.Context, t *models.Transaction, proc remote.Procedure, ids *IdentityMap) error {
	if err := requireResolved("account", t.AccountID); err != nil {
		return err
	}
	if err := requireResolved("category", t.CategoryID); err != nil {
		return err
	}
	pending := t.ID
	rec, err := remote.ToRecord(t)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode transaction", err)
	}
	// The server mints the real id.
	delete(rec, "id")
	result, err := e.remote.Invoke(ctx, proc, rec)
	if err != nil {
		return err
	}
	return e.confirmID(ctx, kindTransaction, pending, result.ID, ids)
}

func (e *Engine) createRecurring(ctx context.Context, p *ops.CreateRecurringPayload, ids *IdentityMap) error {
	if err := requireResolved("account", p.Transaction.AccountID); err != nil {
		return err
	}
	if err := requireResolved("category", p.Transaction.CategoryID); err != nil {
		return err
	}
	pending := p.Transaction.ID
	rec, err := remote.ToRecord(&p.Transaction)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode recurring template", err)
	}
	delete(rec, "id")
	rec["frequency"] = p.Frequency
	result, err := e.remote.Invoke(ctx, remote.ProcCreateRecurring, rec)
	if err != nil {
		return err
	}
	return e.confirmID(ctx, kindTransaction, pending, result.ID, ids)
}

func (e *Engine) createTransfer(ctx context.Context, p *ops.TransferPayload, ids *IdentityMap) error {
	if err := requireResolved("source account", p.AccountID); err != nil {
		return err
	}
	if err := requireResolved("destination account", p.ToAccountID); err != nil {
		return err
	}
	pending := p.ID
	rec, err := remote.ToRecord(p)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode transfer", err)
	}
	delete(rec, "id")
	delete(rec, "incoming_id")
	result, err := e.remote.Invoke(ctx, remote.ProcTransfer, rec)
	if err != nil {
		return err
	}
	// result.ID is the outgoing side of the pair. The server mints the
	// counterpart row itself, so the local placeholder for the incoming leg
	// is dropped here; the pull phase brings in the authoritative row.
	if p.IncomingID.IsPending() {
		if derr := e.mirror.DeleteTransaction(ctx, p.IncomingID); derr != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "drop transfer placeholder", derr)
		}
	}
	return e.confirmID(ctx, kindTransaction, pending, result.ID, ids)
}

func (e *Engine) createAccount(ctx context.Context, a *models.Account, ids *IdentityMap) error {
	if err := e.detector.CheckCreateNamed(ctx, remote.TableAccounts, a.OwnerID, a.Name); err != nil {
		return err
	}
	pending := a.ID
	rec, err := remote.ToRecord(a)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode account", err)
	}
	delete(rec, "id")
	result, err := e.remote.Insert(ctx, remote.TableAccounts, rec)
	if err != nil {
		return err
	}
	return e.confirmID(ctx, kindAccount, pending, result.ID, ids)
}

func (e *Engine) createCategory(ctx context.Context, c *models.Category, ids *IdentityMap) error {
	if err := e.detector.CheckCreateNamed(ctx, remote.TableCategories, c.OwnerID, c.Name); err != nil {
		return err
	}
	pending := c.ID
	rec, err := remote.ToRecord(c)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode category", err)
	}
	delete(rec, "id")
	result, err := e.remote.Insert(ctx, remote.TableCategories, rec)
	if err != nil {
		return err
	}
	return e.confirmID(ctx, kindCategory, pending, result.ID, ids)
}

// applyEdit runs the divergence check and applies the field changes. A
// target already gone server-side makes the edit vacuous.
func (e *Engine) applyEdit(ctx context.Context, table string, edit *ops.Edit, res *Result) error {
	if edit.ID.IsPending() {
		return apperrors.Newf(apperrors.ErrUnresolvedRef, "edit target %s has no server id yet", edit.ID)
	}
	id, _ := edit.ID.ServerID()
	outcome, diverged, err := e.detector.CheckEdit(ctx, table, id, edit.Base)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			e.logger.Warn("edit target gone, dropping operation", map[string]interface{}{
				"table": table, "id": id,
			})
			return nil
		}
		return err
	}
	if outcome == conflict.Warn {
		res.Conflicts++
		e.emit(EventConflictDetected, map[string]interface{}{
			"table":    table,
			"id":       id,
			"diverged": diverged,
		})
		e.logger.Warn("base snapshot diverged, applying last write", map[string]interface{}{
			"table": table, "id": id, "fields": diverged,
		})
	}
	return e.remote.Update(ctx, table, id, edit.Updates)
}

// applyDelete removes the row remotely. Deleting something the server
// never saw, or no longer has, succeeds vacuously.
func (e *Engine) applyDelete(ctx context.Context, table string, del *ops.Delete) error {
	if del.ID.IsPending() {
		return nil
	}
	id, _ := del.ID.ServerID()
	outcome, err := e.detector.CheckDelete(ctx, table, id)
	if err != nil {
		return err
	}
	if outcome == conflict.Noop {
		return nil
	}
	return e.remote.Delete(ctx, table, id)
}

// createInstallments replays an installment set, resuming from the last
// checkpoint so an interrupted replay never duplicates rows.
func (e *Engine) createInstallments(ctx context.Context, op *models.QueuedOperation, p *ops.CreateInstallmentSetPayload, ids *IdentityMap) error {
	if err := requireResolved("account", p.Template.AccountID); err != nil {
		return err
	}
	if err := requireResolved("category", p.Template.CategoryID); err != nil {
		return err
	}
	base := p.Template.DateTime()
	for i := len(p.CreatedIDs); i < p.Count; i++ {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.ErrSyncTimeout, "installment replay interrupted", ctx.Err())
		}
		row := p.Template
		row.Date = base.AddDate(0, i, 0).Unix()
		row.Description = fmt.Sprintf("%s (%d/%d)", p.Template.Description, i+1, p.Count)
		if i > 0 {
			row.ParentTransactionID = models.ConfirmedID(p.CreatedIDs[0])
		}
		rec, err := remote.ToRecord(&row)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode installment", err)
		}
		delete(rec, "id")
		result, err := e.remote.Invoke(ctx, remote.ProcCreateInstallment, rec)
		if err != nil {
			return err
		}
		p.CreatedIDs = append(p.CreatedIDs, result.ID)
		if err := e.queue.UpdateData(ctx, op.ID, p); err != nil {
			return err
		}
	}
	if p.Template.ID.IsPending() && len(p.CreatedIDs) > 0 {
		return e.confirmID(ctx, kindTransaction, p.Template.ID, p.CreatedIDs[0], ids)
	}
	return nil
}

func (e *Engine) bulkImportTransactions(ctx context.Context, op *models.QueuedOperation, p *ops.BulkImportTransactionsPayload, ids *IdentityMap) error {
	for i := len(p.CreatedIDs); i < len(p.Records); i++ {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.ErrSyncTimeout, "bulk import interrupted", ctx.Err())
		}
		row := p.Records[i]
		if err := requireResolved("account", row.AccountID); err != nil {
			return err
		}
		if err := requireResolved("category", row.CategoryID); err != nil {
			return err
		}
		pending := row.ID
		rec, err := remote.ToRecord(&row)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode imported transaction", err)
		}
		delete(rec, "id")
		result, err := e.remote.Insert(ctx, remote.TableTransactions, rec)
		if err != nil {
			return err
		}
		if err := e.confirmID(ctx, kindTransaction, pending, result.ID, ids); err != nil {
			return err
		}
		p.CreatedIDs = append(p.CreatedIDs, result.ID)
		if err := e.queue.UpdateData(ctx, op.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) bulkImportAccounts(ctx context.Context, op *models.QueuedOperation, p *ops.BulkImportAccountsPayload, ids *IdentityMap) error {
	for i := len(p.CreatedIDs); i < len(p.Records); i++ {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.ErrSyncTimeout, "bulk import interrupted", ctx.Err())
		}
		row := p.Records[i]
		pending := row.ID
		rec, err := remote.ToRecord(&row)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode imported account", err)
		}
		delete(rec, "id")
		result, err := e.remote.Insert(ctx, remote.TableAccounts, rec)
		if err != nil {
			return err
		}
		if err := e.confirmID(ctx, kindAccount, pending, result.ID, ids); err != nil {
			return err
		}
		p.CreatedIDs = append(p.CreatedIDs, result.ID)
		if err := e.queue.UpdateData(ctx, op.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) bulkImportCategories(ctx context.Context, op *models.QueuedOperation, p *ops.BulkImportCategoriesPayload, ids *IdentityMap) error {
	for i := len(p.CreatedIDs); i < len(p.Records); i++ {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.ErrSyncTimeout, "bulk import interrupted", ctx.Err())
		}
		row := p.Records[i]
		pending := row.ID
		rec, err := remote.ToRecord(&row)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode imported category", err)
		}
		delete(rec, "id")
		result, err := e.remote.Insert(ctx, remote.TableCategories, rec)
		if err != nil {
			return err
		}
		if err := e.confirmID(ctx, kindCategory, pending, result.ID, ids); err != nil {
			return err
		}
		p.CreatedIDs = append(p.CreatedIDs, result.ID)
		if err := e.queue.UpdateData(ctx, op.ID, p); err != nil {
			return err
		}
	}
	return nil
}

type entityKind int

const (
	kindTransaction entityKind = iota
	kindAccount
	kindCategory
)

// confirmID records a server-minted id for the rest of the pass and
// rewrites the placeholder row in the mirror.
func (e *Engine) confirmID(ctx context.Context, kind entityKind, pending models.EntityID, serverID string, ids *IdentityMap) error {
	if !pending.IsPending() || serverID == "" {
		return nil
	}
	ids.Record(pending, serverID)
	var err error
	switch kind {
	case kindTransaction:
		err = e.mirror.ConfirmTransactionID(ctx, pending, serverID)
	case kindAccount:
		err = e.mirror.ConfirmAccountID(ctx, pending, serverID)
	case kindCategory:
		err = e.mirror.ConfirmCategoryID(ctx, pending, serverID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "confirm server id in mirror", err)
	}
	return nil
}

// pull refreshes the mirror from server state. Each entity kind is fetched
// completely before its reconcile runs, so an aborted fetch leaves the
// mirror untouched.
func (e *Engine) pull(ctx context.Context, res *Result) error {
	owner := e.cfg.OwnerID
	windowStart := e.now().AddDate(0, -e.cfg.WindowMonths, 0).Unix()

	txs, err := e.fetchTransactions(ctx, remote.PageRequest{
		Table:   remote.TableTransactions,
		OwnerID: owner,
		Since:   windowStart,
	})
	if err != nil {
		return err
	}
	if err := e.mirror.ReconcileTransactions(ctx, owner, txs, windowStart); err != nil {
		return err
	}
	res.Pulled += len(txs)

	fixed, err := e.fetchTransactions(ctx, remote.PageRequest{
		Table:     remote.TableTransactions,
		OwnerID:   owner,
		FixedOnly: true,
	})
	if err != nil {
		return err
	}
	if err := e.mirror.ReconcileFixedTransactions(ctx, owner, fixed); err != nil {
		return err
	}
	res.Pulled += len(fixed)

	accounts := make([]*models.Account, 0)
	if err := e.fetchAll(ctx, remote.TableAccounts, owner, func(rec remote.Record) error {
		var a models.Account
		if err := remote.FromRecord(rec, &a); err != nil {
			return err
		}
		accounts = append(accounts, &a)
		return nil
	}); err != nil {
		return err
	}
	if err := e.mirror.ReconcileAccounts(ctx, owner, accounts); err != nil {
		return err
	}
	res.Pulled += len(accounts)

	categories := make([]*models.Category, 0)
	if err := e.fetchAll(ctx, remote.TableCategories, owner, func(rec remote.Record) error {
		var c models.Category
		if err := remote.FromRecord(rec, &c); err != nil {
			return err
		}
		categories = append(categories, &c)
		return nil
	}); err != nil {
		return err
	}
	if err := e.mirror.ReconcileCategories(ctx, owner, categories); err != nil {
		return err
	}
	res.Pulled += len(categories)

	now := e.now()
	if err := e.meta.SetLastSyncAt(ctx, now); err != nil {
		return err
	}
	if err := e.meta.SetLastWindowStart(ctx, windowStart); err != nil {
		return err
	}

	e.emit(EventCachesInvalidated, map[string]interface{}{"owner_id": owner})
	return nil
}

func (e *Engine) fetchTransactions(ctx context.Context, req remote.PageRequest) ([]*models.Transaction, error) {
	var out []*models.Transaction
	req.Limit = e.cfg.PageSize
	for {
		if ctx.Err() != nil {
			return nil, passAbort(ctx)
		}
		page, err := e.remote.FetchPage(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			var t models.Transaction
			if derr := remote.FromRecord(rec, &t); derr != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternal, "decode server transaction", derr)
			}
			out = append(out, &t)
		}
		if len(page) < req.Limit {
			return out, nil
		}
		req.Offset += len(page)
	}
}

func (e *Engine) fetchAll(ctx context.Context, table, owner string, accept func(remote.Record) error) error {
	req := remote.PageRequest{Table: table, OwnerID: owner, Limit: e.cfg.PageSize}
	for {
		if ctx.Err() != nil {
			return passAbort(ctx)
		}
		page, err := e.remote.FetchPage(ctx, req)
		if err != nil {
			return err
		}
		for _, rec := range page {
			if aerr := accept(rec); aerr != nil {
				return apperrors.Wrap(apperrors.ErrInternal, "decode server record", aerr)
			}
		}
		if len(page) < req.Limit {
			return nil
		}
		req.Offset += len(page)
	}
}

// passAbort maps a spent pass context to the pass-level error code.
func passAbort(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.Wrap(apperrors.ErrSyncTimeout, "sync pass deadline exceeded", ctx.Err())
	}
	return apperrors.Wrap(apperrors.ErrSyncFailed, "sync pass canceled", ctx.Err())
}
