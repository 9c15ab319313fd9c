package core

import (
	"sync"
	"sync/atomic"
)

const AVG_COUNT uint8 = 30

type MetricsState struct {
	mu                 sync.Mutex
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	resourcesRequested atomic.Int64
	resourcesLoaded    atomic.Int64
	resourcesFailed    atomic.Int64
	uploadsExecuted    atomic.Int64
	jobsCompleted      atomic.Int64
}

// MetricsSnapshot is a copy of the counters, safe to serialize.
type MetricsSnapshot struct {
	FPS                float64 `json:"fps"`
	FrameTimeMS        float64 `json:"frame_time_ms"`
	ResourcesRequested int64   `json:"resources_requested"`
	ResourcesLoaded    int64   `json:"resources_loaded"`
	ResourcesFailed    int64   `json:"resources_failed"`
	UploadsExecuted    int64   `json:"uploads_executed"`
	JobsCompleted      int64   `json:"jobs_completed"`
}

var onceMetrics sync.Once
var metricsState *MetricsState

func metrics() *MetricsState {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return metricsState
}

func MetricsInitialize() error {
	metrics()
	return nil
}

func MetricsUpdate(frameElapsedTime float64) {
	m := metrics()
	m.mu.Lock()
	defer m.mu.Unlock()

	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.MSavg += m.MStimes[i]
		}
		m.MSavg /= float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	m.Frames++
}

func MetricsFrame() (float64, float64) {
	m := metrics()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FPS, m.MSavg
}

func MetricsResourceRequested() { metrics().resourcesRequested.Add(1) }
func MetricsResourceLoaded()    { metrics().resourcesLoaded.Add(1) }
func MetricsResourceFailed()    { metrics().resourcesFailed.Add(1) }
func MetricsUploadExecuted()    { metrics().uploadsExecuted.Add(1) }
func MetricsJobCompleted()      { metrics().jobsCompleted.Add(1) }

func MetricsGet() MetricsSnapshot {
	m := metrics()
	fps, avg := MetricsFrame()
	return MetricsSnapshot{
		FPS:                fps,
		FrameTimeMS:        avg,
		ResourcesRequested: m.resourcesRequested.Load(),
		ResourcesLoaded:    m.resourcesLoaded.Load(),
		ResourcesFailed:    m.resourcesFailed.Load(),
		UploadsExecuted:    m.uploadsExecuted.Load(),
		JobsCompleted:      m.jobsCompleted.Load(),
	}
}
