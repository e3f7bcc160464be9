package taskmgr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raglab/ragindex-mcp/internal/retriever"
	"github.com/raglab/ragindex-mcp/internal/textgen"
	"github.com/raglab/ragindex-mcp/pkg/types"
)

const (
	// DefaultHistoryLimit bounds the number of retained terminal tasks.
	DefaultHistoryLimit = 100
	// DefaultMaxWorkers bounds concurrently executing pipelines.
	DefaultMaxWorkers = 4
)

// Retriever is the slice of the retrieval orchestrator the pipeline needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, mode retriever.Mode, k int) ([]types.RetrievalResult, error)
}

// Config tunes the manager.
type Config struct {
	HistoryLimit int // retained terminal tasks (default 100)
	MaxWorkers   int // concurrent pipelines (default 4)
}

// Manager runs submitted searches asynchronously. Submission returns a task
// id immediately; the pipeline executes in the background and callers poll
// progress and fetch results by id. Terminal tasks are retained up to the
// history limit, oldest evicted first.
type Manager struct {
	retriever Retriever
	gen       textgen.Generator

	baseCtx context.Context
	stop    context.CancelFunc
	workers chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	tasks    map[string]*Task
	terminal []string // terminal task ids in completion order
	history  int
}

// New creates a Manager. gen may be nil, in which case the generation step is
// skipped and results carry sources only.
func New(r Retriever, gen textgen.Generator, cfg Config) *Manager {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		retriever: r,
		gen:       gen,
		baseCtx:   ctx,
		stop:      cancel,
		workers:   make(chan struct{}, cfg.MaxWorkers),
		tasks:     make(map[string]*Task),
		history:   cfg.HistoryLimit,
	}
}

// Submit registers a new search task and schedules its pipeline. The
// returned id is valid immediately for progress polling.
func (m *Manager) Submit(query, mode string, maxResults int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query cannot be empty")
	}

	task := &Task{
		ID:         uuid.New().String(),
		Query:      query,
		Mode:       mode,
		MaxResults: maxResults,
		state:      StatePending,
		createdAt:  time.Now(),
	}

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(task)
	return task.ID, nil
}

// Progress returns the current execution status of a task.
func (m *Manager) Progress(id string) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return Progress{}, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	return Progress{
		State:   task.state,
		Step:    task.step,
		Message: task.message,
		Percent: task.percent,
	}, nil
}

// Results returns a completed task's payload. A task that is still pending
// or running yields ErrNotReady; a failed task yields its stored error; a
// cancelled task yields ErrNotReady permanently.
func (m *Manager) Results(id string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	switch task.state {
	case StateCompleted:
		return task.result, nil
	case StateFailed:
		return nil, task.err
	default:
		return nil, fmt.Errorf("%w: task %s is %s", types.ErrNotReady, id, task.state)
	}
}

// Steps returns the recorded step transitions for a task.
func (m *Manager) Steps(id string) ([]StepLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	out := make([]StepLogEntry, len(task.stepLog))
	copy(out, task.stepLog)
	return out, nil
}

// Cancel requests cooperative cancellation. The pipeline observes the flag
// at the next step boundary; in-flight step work is not interrupted.
// Cancelling a terminal task is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	if task.state.Terminal() {
		return nil
	}
	task.cancelRequested.Store(true)
	return nil
}

// Close stops accepting work and waits for in-flight pipelines to reach a
// step boundary and exit.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// run executes the pipeline for one task.
func (m *Manager) run(task *Task) {
	defer m.wg.Done()

	select {
	case <-m.baseCtx.Done():
		m.finish(task, StateCancelled, nil, nil)
		return
	case m.workers <- struct{}{}:
	}
	defer func() { <-m.workers }()

	if m.checkCancelled(task) {
		return
	}

	m.mu.Lock()
	task.state = StateRunning
	m.mu.Unlock()

	m.enterStep(task, StepParsing, "validating query", 10)
	mode, err := retriever.ParseMode(task.Mode)
	if err != nil {
		m.finish(task, StateFailed, nil, err)
		return
	}
	if m.checkCancelled(task) {
		return
	}

	m.enterStep(task, StepSearching, "searching knowledge base", 30)
	results, err := m.retriever.Retrieve(m.baseCtx, task.Query, mode, task.MaxResults)
	if err != nil {
		m.finish(task, StateFailed, nil, err)
		return
	}
	if m.checkCancelled(task) {
		return
	}

	m.enterStep(task, StepRetrieving, fmt.Sprintf("collected %d sources", len(results)), 60)
	if m.checkCancelled(task) {
		return
	}

	answer := ""
	if m.gen != nil {
		m.enterStep(task, StepGenerating, "generating answer", 80)
		answer, err = m.gen.Generate(m.baseCtx, buildAnswerPrompt(task.Query, results))
		if err != nil {
			if errors.Is(m.baseCtx.Err(), context.Canceled) {
				m.finish(task, StateCancelled, nil, nil)
				return
			}
			log.Printf("taskmgr: generation failed for task %s: %v", task.ID, err)
			m.finish(task, StateFailed, nil, fmt.Errorf("%w: %v", types.ErrGeneration, err))
			return
		}
		if m.checkCancelled(task) {
			return
		}
	}

	m.finish(task, StateCompleted, &Result{Answer: answer, Sources: results}, nil)
}

// checkCancelled finalizes the task if cancellation was requested or the
// manager is shutting down.
func (m *Manager) checkCancelled(task *Task) bool {
	if task.cancelRequested.Load() || m.baseCtx.Err() != nil {
		m.finish(task, StateCancelled, nil, nil)
		return true
	}
	return false
}

// enterStep records a step transition.
func (m *Manager) enterStep(task *Task, step Step, message string, percent int) {
	m.mu.Lock()
	task.step = step
	task.message = message
	task.percent = percent
	task.stepLog = append(task.stepLog, StepLogEntry{Step: step, Message: message, At: time.Now()})
	m.mu.Unlock()
}

// finish moves a task to a terminal state and evicts history past the limit.
func (m *Manager) finish(task *Task, state State, result *Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.state.Terminal() {
		return
	}
	task.state = state
	task.result = result
	task.err = err
	task.completedAt = time.Now()
	if state == StateCompleted {
		task.percent = 100
		task.message = "done"
	}

	m.terminal = append(m.terminal, task.ID)
	for len(m.terminal) > m.history {
		oldest := m.terminal[0]
		m.terminal = m.terminal[1:]
		delete(m.tasks, oldest)
	}
}

// buildAnswerPrompt assembles the grounding prompt for answer generation.
func buildAnswerPrompt(query string, results []types.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the sources below. Cite web sources by URL.\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "Source %d (%s", i+1, r.Provenance)
		if r.Source != "" {
			fmt.Fprintf(&b, ", %s", r.Source)
		}
		b.WriteString("):\n")
		b.WriteString(r.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
