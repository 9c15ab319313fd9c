package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

// JobTask is one unit of background work.
type JobTask struct {
	Name string
	Run  func() error
	// OnFailure is called with the error returned by Run, or with the
	// recovered panic wrapped in an error.
	OnFailure func(err error)
	// OnCompletionCallback runs after Run, whatever the outcome.
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = fmt.Errorf("job system already shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

// run executes one task. A panicking task is reported as a failure and
// never takes the worker down.
func (js *JobSystem) run(job JobTask) {
	defer func() {
		if job.OnCompletionCallback != nil {
			job.OnCompletionCallback()
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("job %q panicked: %v", job.Name, rec)
			core.LogError(err.Error())
			if job.OnFailure != nil {
				job.OnFailure(err)
			}
		}
	}()

	if err := job.Run(); err != nil {
		core.LogError("job %q failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	}
}

/**
 * @brief Shuts the job system down, waiting for queued work to finish.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return ErrJobSystemClosed
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

// AddWorkNonBlocking queues work from a new goroutine and returns immediately.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogWarn("dropping job %q: %s", jt.Name, err)
			if jt.OnFailure != nil {
				jt.OnFailure(err)
			}
			if jt.OnCompletionCallback != nil {
				jt.OnCompletionCallback()
			}
		}
	}()
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 * @param info The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}
