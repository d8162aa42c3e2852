package preload

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Pipeline is the Preload Pipeline of spec.md §4.3. A single mutex
// serializes every mutation of scheduling state (tasks, running counts,
// focus, pause); loader goroutines run outside the lock and report back
// through completion callbacks, the same split the Virtual Page List uses
// between its locked writers and lock-free readers.
type Pipeline struct {
	loaders Loaders
	store   ArtifactCache
	length  func() int

	mu       sync.Mutex
	cfg      Config
	focus    int
	hasFocus bool
	paused   bool
	tasks    map[Fingerprint]*Task
	sem      map[Kind]chan struct{}

	// sf deduplicates the actual loader invocation as a second line of
	// defense beyond the tasks map, per spec.md §4.3's "ensure_task and
	// the scheduler guarantee at-most-one live task per fingerprint".
	sf singleflight.Group

	// Optional event hooks (spec.md §6's preload-task-start/complete/
	// queue-change/focus-change). Each is called outside p.mu; nil hooks
	// are skipped. The Book Coordinator wires these to its Observer
	// multiplexer.
	OnTaskStart    func(Task)
	OnTaskComplete func(Fingerprint, Result)
	OnQueueChange  func(size int)
}

// NewPipeline wires loaders and a cache together into a running pipeline.
// length reports the current virtual page count (pages.List.Length).
func NewPipeline(loaders Loaders, store ArtifactCache, length func() int, cfg Config) *Pipeline {
	p := &Pipeline{
		loaders: loaders,
		store:   store,
		length:  length,
		cfg:     cfg,
		tasks:   make(map[Fingerprint]*Task),
		sem:     make(map[Kind]chan struct{}),
	}
	for _, k := range []Kind{KindImage, KindThumbnail, KindUpscale} {
		p.sem[k] = make(chan struct{}, cfg.capFor(k))
	}
	return p
}

// Config returns a copy of the current configuration.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SetConfig updates the window and auto-upscale settings and recalculates.
// Concurrency caps are fixed at construction time; changing them here is a
// no-op for the semaphore channels, to avoid orphaning tokens already held
// by in-flight tasks referencing the old channel.
func (p *Pipeline) SetConfig(cfg Config) {
	p.mu.Lock()
	cfg.Concurrency = p.cfg.Concurrency
	p.cfg = cfg
	p.mu.Unlock()
	p.recalculate()
}

// SetFocus moves the scheduling window's center. Idempotent when vi is
// already the current focus.
func (p *Pipeline) SetFocus(vi int) {
	p.mu.Lock()
	if p.hasFocus && p.focus == vi {
		p.mu.Unlock()
		return
	}
	p.focus = vi
	p.hasFocus = true
	p.mu.Unlock()
	p.recalculate()
}

// Request asks for one artifact outside (or inside) the current window.
// A cache hit resolves synchronously; otherwise it attaches to (or
// creates) the live task for that fingerprint. An explicit priority, if
// given, only ever lowers (improves) the task's existing priority.
func (p *Pipeline) Request(kind Kind, vi int, priority ...int) *Future {
	if data, ok := p.store.Get(kind, vi); ok {
		return completedFuture(Result{Data: data})
	}

	p.mu.Lock()
	prio := kind.offset()
	if len(priority) > 0 {
		prio = priority[0]
	}
	t := p.ensureTaskLocked(Fingerprint{Kind: kind, Index: vi}, prio)
	f := t.future
	p.mu.Unlock()

	p.admit(kind)
	return f
}

// Pause suspends the admission of new tasks; tasks already loading
// continue to completion.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume re-enters the scheduling loop.
func (p *Pipeline) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	for _, k := range []Kind{KindImage, KindThumbnail, KindUpscale} {
		p.admit(k)
	}
}

// CancelAll cancels every live task.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	fps := make([]Fingerprint, 0, len(p.tasks))
	for fp := range p.tasks {
		fps = append(fps, fp)
	}
	for _, fp := range fps {
		p.cancelLocked(fp)
	}
	p.mu.Unlock()
}

// ClearCache drops cached artifacts. With no argument it clears every
// kind (including upscales); with a kind argument it clears only that
// kind. See DESIGN.md's Open Question decision on this asymmetry.
func (p *Pipeline) ClearCache(kind ...Kind) {
	if len(kind) == 0 {
		p.store.ClearAll()
		return
	}
	p.store.ClearKind(kind[0])
}

// Close cancels every live task and releases pipeline resources. Safe to
// call once during the owning Book Coordinator's shutdown.
func (p *Pipeline) Close() {
	p.CancelAll()
}

// recalculate implements spec.md §4.3's four-step algorithm.
func (p *Pipeline) recalculate() {
	p.mu.Lock()
	if !p.hasFocus {
		p.mu.Unlock()
		return
	}
	n := 0
	if p.length != nil {
		n = p.length()
	}
	lo := p.focus - p.cfg.Behind
	hi := p.focus + p.cfg.Ahead
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}

	touched := make(map[Fingerprint]bool)
	kinds := []Kind{KindImage, KindThumbnail}
	if p.cfg.AutoUpscale {
		kinds = append(kinds, KindUpscale)
	}

	for vi := lo; vi <= hi; vi++ {
		dist := vi - p.focus
		if dist < 0 {
			dist = -dist
		}
		for _, k := range kinds {
			if _, ok := p.store.Get(k, vi); ok {
				continue
			}
			fp := Fingerprint{Kind: k, Index: vi}
			touched[fp] = true
			p.ensureTaskLocked(fp, dist+k.offset())
		}
	}

	var toCancel []Fingerprint
	for fp := range p.tasks {
		if !touched[fp] {
			toCancel = append(toCancel, fp)
		}
	}
	for _, fp := range toCancel {
		p.cancelLocked(fp)
	}
	p.mu.Unlock()

	for _, k := range []Kind{KindImage, KindThumbnail, KindUpscale} {
		p.admit(k)
	}
}

// ensureTaskLocked returns the live task for fp, creating it with
// priority if absent, or lowering its priority to min(current, priority)
// if present. Must be called with p.mu held.
func (p *Pipeline) ensureTaskLocked(fp Fingerprint, priority int) *Task {
	if t, ok := p.tasks[fp]; ok {
		if priority < t.Priority {
			t.Priority = priority
		}
		return t
	}
	t := &Task{
		Fingerprint: fp,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   now(),
		future:      newFuture(),
	}
	p.tasks[fp] = t
	return t
}

// cancelLocked signals and removes fp's task. Must be called with p.mu
// held.
func (p *Pipeline) cancelLocked(fp Fingerprint) {
	t, ok := p.tasks[fp]
	if !ok {
		return
	}
	delete(p.tasks, fp)
	switch t.Status {
	case StatusPending:
		t.Status = StatusCancelled
		t.future.complete(Result{Err: ErrCancelled})
	case StatusLoading:
		if t.cancel != nil {
			t.cancel()
		}
		// execute() observes ctx.Done() and completes the future itself.
	}
}

// admit starts pending tasks of kind, in priority order, until the
// kind's concurrency cap (its semaphore buffer) is exhausted.
func (p *Pipeline) admit(kind Kind) {
	for {
		p.mu.Lock()
		if p.paused {
			p.mu.Unlock()
			return
		}
		var next *Task
		var lowestPrio int
		for _, t := range p.tasks {
			if t.Fingerprint.Kind != kind || t.Status != StatusPending {
				continue
			}
			if next == nil || t.Priority < lowestPrio ||
				(t.Priority == lowestPrio && t.CreatedAt.Before(next.CreatedAt)) {
				next = t
				lowestPrio = t.Priority
			}
		}
		if next == nil {
			p.mu.Unlock()
			return
		}
		select {
		case p.sem[kind] <- struct{}{}:
		default:
			p.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		next.cancel = cancel
		next.Status = StatusLoading
		t := next
		queueSize := len(p.tasks)
		p.mu.Unlock()

		if p.OnTaskStart != nil {
			p.OnTaskStart(*t)
		}
		if p.OnQueueChange != nil {
			p.OnQueueChange(queueSize)
		}

		go p.execute(t, ctx)
	}
}

// execute runs a task's loader body and reports completion. It always
// releases the semaphore token acquired by admit and attempts to admit
// the next pending task of the same kind.
func (p *Pipeline) execute(t *Task, ctx context.Context) {
	kind := t.Fingerprint.Kind
	defer func() {
		<-p.sem[kind]
		p.admit(kind)
	}()

	v, err, _ := p.sf.Do(t.Fingerprint.String(), func() (interface{}, error) {
		return p.runLoader(ctx, t.Fingerprint)
	})

	p.mu.Lock()
	if cur, ok := p.tasks[t.Fingerprint]; ok && cur == t {
		delete(p.tasks, t.Fingerprint)
	}
	p.mu.Unlock()

	if ctx.Err() != nil {
		t.Status = StatusCancelled
		result := Result{Err: ErrCancelled}
		t.future.complete(result)
		if p.OnTaskComplete != nil {
			p.OnTaskComplete(t.Fingerprint, result)
		}
		return
	}
	if err != nil {
		t.Status = StatusError
		result := Result{Err: err}
		t.future.complete(result)
		if p.OnTaskComplete != nil {
			p.OnTaskComplete(t.Fingerprint, result)
		}
		return
	}
	data, _ := v.([]byte)
	p.store.Set(kind, t.Fingerprint.Index, data)
	t.Status = StatusDone
	result := Result{Data: data}
	t.future.complete(result)
	if p.OnTaskComplete != nil {
		p.OnTaskComplete(t.Fingerprint, result)
	}
}

func (p *Pipeline) runLoader(ctx context.Context, fp Fingerprint) ([]byte, error) {
	switch fp.Kind {
	case KindImage:
		if p.loaders.Image == nil {
			return nil, &errLoaderMissing{kind: KindImage}
		}
		return p.loaders.Image(ctx, fp.Index)
	case KindThumbnail:
		if p.loaders.Thumbnail == nil {
			return nil, &errLoaderMissing{kind: KindThumbnail}
		}
		return p.loaders.Thumbnail(ctx, fp.Index)
	case KindUpscale:
		if p.loaders.Upscale == nil {
			return nil, &errLoaderMissing{kind: KindUpscale}
		}
		img, ok := p.store.Get(KindImage, fp.Index)
		if !ok {
			if p.loaders.Image == nil {
				return nil, &errLoaderMissing{kind: KindImage}
			}
			imageFP := Fingerprint{Kind: KindImage, Index: fp.Index}
			v, err, _ := p.sf.Do(imageFP.String(), func() (interface{}, error) {
				return p.loaders.Image(ctx, fp.Index)
			})
			if err != nil {
				return nil, err
			}
			loaded, _ := v.([]byte)
			p.store.Set(KindImage, fp.Index, loaded)
			img = loaded
		}
		return p.loaders.Upscale(ctx, img)
	default:
		return nil, &errLoaderMissing{kind: fp.Kind}
	}
}

var timeNow = time.Now

func now() time.Time { return timeNow() }
