// Package pipeline runs the three generation stages of an animation and
// reports every transition to the record store and to subscribers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/ASHISH26940/manim-studio/pkg/llm"
	"github.com/ASHISH26940/manim-studio/pkg/notify"
	"github.com/ASHISH26940/manim-studio/pkg/render"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

// InterruptedReason is recorded on tasks failed by Reconcile.
const InterruptedReason = "interrupted: server restarted"

// Store is the subset of the record store the orchestrator writes to.
type Store interface {
	FindAnimationByID(ctx context.Context, id uuid.UUID) (*db.Animation, error)
	FindTasksByAnimationID(ctx context.Context, animationID uuid.UUID) ([]db.GenerationTask, error)
	GetUserSettings(ctx context.Context, userID uuid.UUID) (*db.UserSettings, error)
	UpdateAnimationStatus(ctx context.Context, id uuid.UUID, status db.Status) error
	UpdateAnimationScript(ctx context.Context, id uuid.UUID, script string) error
	UpdateAnimationCode(ctx context.Context, id uuid.UUID, code string) error
	UpdateAnimationVideo(ctx context.Context, id uuid.UUID, videoURL string) error
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status db.Status, errMsg string) error
	UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress int) error
	FailStaleProcessingTasks(ctx context.Context, cutoff time.Time, reason string) ([]db.StaleTask, error)
	SettleOrphanedRuns(ctx context.Context, cutoff time.Time, reason string) ([]db.StaleRun, error)
}

// Generator produces scripts and code. *llm.Service satisfies it.
type Generator interface {
	ResolveCredentials(settings *db.UserSettings) llm.Credentials
	GenerateScript(ctx context.Context, req llm.Request, prompt string) (string, error)
	GenerateCode(ctx context.Context, req llm.Request, prompt, script string, duration int) (string, error)
}

// Publisher receives every event emitted during a run.
type Publisher interface {
	Publish(event any)
}

type Orchestrator struct {
	store    Store
	gen      Generator
	renderer render.Renderer
	pub      Publisher
	pool     *ants.Pool
	now      func() time.Time
}

// New builds an Orchestrator. pool may be nil, in which case every run gets
// its own goroutine.
func New(store Store, gen Generator, renderer render.Renderer, pub Publisher, pool *ants.Pool) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gen:      gen,
		renderer: renderer,
		pub:      pub,
		pool:     pool,
		now:      time.Now,
	}
}

// run is the state threaded through the stages of one pipeline run.
type run struct {
	animation *db.Animation
	req       llm.Request
	script    string
	code      string
	videoURL  string
}

type stage struct {
	taskType db.TaskType
	execute  func(ctx context.Context, r *run, task db.GenerationTask) error
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{db.TaskScriptGeneration, o.generateScript},
		{db.TaskCodeGeneration, o.generateCode},
		{db.TaskRendering, o.renderVideo},
	}
}

// Submit starts RunPipeline in the background and returns immediately.
func (o *Orchestrator) Submit(animationID uuid.UUID, model db.AIModel) {
	job := func() {
		o.RunPipeline(context.Background(), animationID, model)
	}
	if o.pool != nil {
		err := o.pool.Submit(job)
		if err == nil {
			return
		}
		log.Warnf("Worker pool rejected pipeline for animation %s, running on a goroutine: %v", animationID, err)
	}
	go job()
}

// RunPipeline executes script generation, code generation and rendering in
// order. The outcome is only observable through the store and published
// events; no error escapes.
func (o *Orchestrator) RunPipeline(ctx context.Context, animationID uuid.UUID, model db.AIModel) {
	logger := log.WithFields(log.Fields{"animation_id": animationID, "ai_model": model})
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("Pipeline panicked: %v", p)
			o.finish(ctx, logger, animationID, fmt.Errorf("internal error: %v", p))
		}
	}()

	animation, err := o.store.FindAnimationByID(ctx, animationID)
	if err != nil {
		logger.Errorf("Failed to load animation: %v", err)
		return
	}
	if animation == nil {
		logger.Error("Animation not found, pipeline not started")
		return
	}

	if err := o.store.UpdateAnimationStatus(ctx, animationID, db.StatusProcessing); err != nil {
		logger.Errorf("Failed to mark animation processing: %v", err)
		err = fmt.Errorf("failed to start pipeline: %w", err)
		if task, findErr := o.findTask(ctx, animationID, db.TaskScriptGeneration); findErr == nil {
			o.failTask(ctx, logger, animationID, *task, err)
		}
		o.finish(ctx, logger, animationID, err)
		return
	}
	logger.Info("Pipeline started")

	r := &run{
		animation: animation,
		req:       llm.Request{Model: model, Credentials: o.credentials(ctx, logger, animation.UserID)},
	}
	for _, st := range o.stages() {
		if err := o.runStage(ctx, logger, r, st); err != nil {
			o.finish(ctx, logger, animationID, err)
			return
		}
	}
	o.finish(ctx, logger, animationID, nil)
}

// credentials resolves provider keys once per run. A settings lookup failure
// falls back to the server defaults.
func (o *Orchestrator) credentials(ctx context.Context, logger *log.Entry, userID uuid.UUID) llm.Credentials {
	settings, err := o.store.GetUserSettings(ctx, userID)
	if err != nil {
		logger.Warnf("Failed to load user settings, using default credentials: %v", err)
		settings = nil
	}
	return o.gen.ResolveCredentials(settings)
}

func (o *Orchestrator) runStage(ctx context.Context, logger *log.Entry, r *run, st stage) error {
	animationID := r.animation.ID
	task, err := o.findTask(ctx, animationID, st.taskType)
	if err != nil {
		logger.Errorf("Stage %s cannot start: %v", st.taskType, err)
		return err
	}
	logger = logger.WithFields(log.Fields{"task_id": task.ID, "task_type": task.TaskType})

	if err := o.store.UpdateTaskStatus(ctx, task.ID, db.StatusProcessing, ""); err != nil {
		logger.Errorf("Failed to mark task processing: %v", err)
		err = fmt.Errorf("failed to start %s: %w", st.taskType, err)
		o.failTask(ctx, logger, animationID, *task, err)
		return err
	}
	o.pub.Publish(notify.NewTaskUpdate(animationID, *task, db.StatusProcessing))
	logger.Info("Stage started")

	if err := execute(ctx, st, r, *task); err != nil {
		o.failTask(ctx, logger, animationID, *task, err)
		return err
	}

	if err := o.store.UpdateTaskStatus(ctx, task.ID, db.StatusCompleted, ""); err != nil {
		logger.Errorf("Failed to mark task completed: %v", err)
		err = fmt.Errorf("failed to record %s completion: %w", st.taskType, err)
		o.failTask(ctx, logger, animationID, *task, err)
		return err
	}
	completed := notify.NewTaskUpdate(animationID, *task, db.StatusCompleted)
	if st.taskType == db.TaskRendering {
		completed.VideoURL = r.videoURL
	}
	o.pub.Publish(completed)
	logger.Info("Stage completed")
	return nil
}

// failTask records cause on the task and publishes the failure. The update is
// published even if the store write fails.
func (o *Orchestrator) failTask(ctx context.Context, logger *log.Entry, animationID uuid.UUID, task db.GenerationTask, cause error) {
	msg := cause.Error()
	if err := o.store.UpdateTaskStatus(ctx, task.ID, db.StatusFailed, msg); err != nil {
		logger.Errorf("Failed to mark task failed: %v", err)
	}
	failed := notify.NewTaskUpdate(animationID, task, db.StatusFailed)
	failed.Error = msg
	o.pub.Publish(failed)
	logger.Warnf("Stage failed: %s", msg)
}

// execute runs one stage, converting a panic into a stage failure.
func execute(ctx context.Context, st stage, r *run, task db.GenerationTask) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return st.execute(ctx, r, task)
}

func (o *Orchestrator) findTask(ctx context.Context, animationID uuid.UUID, taskType db.TaskType) (*db.GenerationTask, error) {
	tasks, err := o.store.FindTasksByAnimationID(ctx, animationID)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].TaskType == taskType {
			return &tasks[i], nil
		}
	}
	return nil, apperr.Wrap(apperr.ErrNotFound, "", fmt.Sprintf("%s task not found", taskType), nil)
}

func (o *Orchestrator) generateScript(ctx context.Context, r *run, _ db.GenerationTask) error {
	script, err := o.gen.GenerateScript(ctx, r.req, r.animation.Prompt)
	if err != nil {
		return err
	}
	if err := o.store.UpdateAnimationScript(ctx, r.animation.ID, script); err != nil {
		return fmt.Errorf("failed to save script: %w", err)
	}
	r.script = script
	return nil
}

func (o *Orchestrator) generateCode(ctx context.Context, r *run, _ db.GenerationTask) error {
	if r.script == "" {
		return errors.New("script is missing")
	}
	code, err := o.gen.GenerateCode(ctx, r.req, r.animation.Prompt, r.script, r.animation.Duration)
	if err != nil {
		return err
	}
	if err := o.store.UpdateAnimationCode(ctx, r.animation.ID, code); err != nil {
		return fmt.Errorf("failed to save code: %w", err)
	}
	r.code = code
	return nil
}

func (o *Orchestrator) renderVideo(ctx context.Context, r *run, task db.GenerationTask) error {
	if r.code == "" {
		return errors.New("code is missing")
	}
	animationID := r.animation.ID
	onProgress := func(percent int) {
		o.pub.Publish(notify.NewTaskProgress(animationID, task.ID, percent))
		if err := o.store.UpdateTaskProgress(ctx, task.ID, percent); err != nil {
			log.WithField("task_id", task.ID).Debugf("Failed to persist render progress: %v", err)
		}
	}

	videoURL, err := o.renderer.Render(ctx, animationID, r.code, onProgress)
	if err != nil {
		return err
	}
	if err := o.store.UpdateAnimationVideo(ctx, animationID, videoURL); err != nil {
		return fmt.Errorf("failed to save video: %w", err)
	}
	r.videoURL = videoURL
	return nil
}

// finish moves the animation to its terminal state. A nil cause means every
// stage succeeded.
func (o *Orchestrator) finish(ctx context.Context, logger *log.Entry, animationID uuid.UUID, cause error) {
	status := db.StatusCompleted
	msg := ""
	if cause != nil {
		status = db.StatusFailed
		msg = apperr.Message(cause)
	}
	if err := o.store.UpdateAnimationStatus(ctx, animationID, status); err != nil {
		logger.Errorf("Failed to mark animation %s: %v", status, err)
	}
	o.pub.Publish(notify.NewAnimationUpdate(animationID, status, msg))
	if cause != nil {
		logger.Warnf("Pipeline failed: %s", msg)
		return
	}
	logger.Info("Pipeline completed")
}

// Reconcile settles runs interrupted by a restart. Tasks in processing since
// before olderThan ago are failed along with their animations. Animations in
// processing with no running task get their next pending task failed, so a
// failed animation always has a task carrying the error. It returns how many
// animations were settled. At startup nothing is running, so olderThan is 0.
func (o *Orchestrator) Reconcile(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := o.now().Add(-olderThan)
	stale, err := o.store.FailStaleProcessingTasks(ctx, cutoff, InterruptedReason)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stale tasks: %w", err)
	}

	settled := make(map[uuid.UUID]bool)
	for _, st := range stale {
		o.publishInterrupted(st)
		if !settled[st.AnimationID] {
			settled[st.AnimationID] = true
			o.pub.Publish(notify.NewAnimationUpdate(st.AnimationID, db.StatusFailed, InterruptedReason))
		}
	}

	runs, err := o.store.SettleOrphanedRuns(ctx, cutoff, InterruptedReason)
	if err != nil {
		return len(settled), fmt.Errorf("failed to settle orphaned runs: %w", err)
	}
	for _, run := range runs {
		if run.Task != nil {
			o.publishInterrupted(*run.Task)
		}
		msg := ""
		if run.Status == db.StatusFailed {
			msg = InterruptedReason
		}
		settled[run.AnimationID] = true
		o.pub.Publish(notify.NewAnimationUpdate(run.AnimationID, run.Status, msg))
	}

	if len(settled) > 0 {
		log.Warnf("Reconcile settled %d interrupted run(s), %d stale task(s) failed", len(settled), len(stale))
	}
	return len(settled), nil
}

func (o *Orchestrator) publishInterrupted(st db.StaleTask) {
	update := notify.NewTaskUpdate(st.AnimationID, db.GenerationTask{ID: st.TaskID, TaskType: st.TaskType}, db.StatusFailed)
	update.Error = InterruptedReason
	o.pub.Publish(update)
}
