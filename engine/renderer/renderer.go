package renderer

import (
	"sync"
	"time"

	"github.com/spaghettifunk/mapstudio/engine/containers"
	"github.com/spaghettifunk/mapstudio/engine/core"
)

// Renderer owns the device and the deferred upload queue. Frame must always
// be called from the same goroutine, the render thread.
type Renderer struct {
	device Device

	mu    sync.Mutex
	queue *containers.RingQueue[UploadTask]

	frameNumber uint64
	clock       *core.Clock
}

func New(device Device) *Renderer {
	return &Renderer{
		device: device,
		queue:  containers.NewRingQueue[UploadTask](64),
		clock:  core.NewClock(),
	}
}

func (r *Renderer) Device() Device {
	return r.device
}

// AddBackgroundUploadTask queues a task for the next frame. Safe to call from
// any goroutine.
func (r *Renderer) AddBackgroundUploadTask(task UploadTask) {
	if task == nil {
		return
	}
	r.mu.Lock()
	r.queue.Enqueue(task)
	r.mu.Unlock()
}

// PendingUploads returns the number of queued tasks.
func (r *Renderer) PendingUploads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

func (r *Renderer) FrameNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameNumber
}

// Frame executes, in FIFO order, the upload tasks queued before the call, then
// the optional draw callback, then submits. Tasks queued while the frame runs
// wait for the next one. A failing task is logged and does not stop the drain.
// Returns the number of upload tasks executed.
func (r *Renderer) Frame(draw DrawFunc) (int, error) {
	r.clock.Start()

	r.mu.Lock()
	n := r.queue.Len()
	r.frameNumber++
	r.mu.Unlock()

	cl, err := r.device.BeginCommands()
	if err != nil {
		core.LogError("failed to begin frame commands: %s", err)
		return 0, err
	}

	for i := 0; i < n; i++ {
		r.mu.Lock()
		task, err := r.queue.Dequeue()
		r.mu.Unlock()
		if err != nil {
			break
		}
		r.execute(task, cl)
	}

	if draw != nil {
		draw(r.device, cl)
	}

	if err := r.device.Submit(cl); err != nil {
		core.LogError("failed to submit frame %d: %s", r.FrameNumber(), err)
		return n, err
	}

	r.clock.Update()
	core.MetricsUpdate(r.clock.Elapsed())
	return n, nil
}

// Flush runs frames until the queue is empty or maxFrames is reached.
func (r *Renderer) Flush(maxFrames int) error {
	for i := 0; i < maxFrames && r.PendingUploads() > 0; i++ {
		if _, err := r.Frame(nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) execute(task UploadTask, cl CommandList) {
	defer func() {
		if rec := recover(); rec != nil {
			core.LogError("upload task panicked: %v", rec)
		}
	}()
	start := time.Now()
	if err := task(r.device, cl); err != nil {
		core.LogError("upload task failed: %s", err)
		return
	}
	core.MetricsUploadExecuted()
	core.LogDebug("upload task finished in %s", time.Since(start))
}

func (r *Renderer) Shutdown() error {
	if err := r.device.WaitIdle(); err != nil {
		return err
	}
	return r.device.Shutdown()
}
