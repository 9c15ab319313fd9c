package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	before := MetricsGet()
	MetricsResourceRequested()
	MetricsResourceLoaded()
	MetricsResourceFailed()
	MetricsUploadExecuted()
	MetricsJobCompleted()
	after := MetricsGet()

	assert.Equal(t, before.ResourcesRequested+1, after.ResourcesRequested)
	assert.Equal(t, before.ResourcesLoaded+1, after.ResourcesLoaded)
	assert.Equal(t, before.ResourcesFailed+1, after.ResourcesFailed)
	assert.Equal(t, before.UploadsExecuted+1, after.UploadsExecuted)
	assert.Equal(t, before.JobsCompleted+1, after.JobsCompleted)
}

func TestMetricsFrameAverage(t *testing.T) {
	for i := 0; i < int(AVG_COUNT); i++ {
		MetricsUpdate(0.016)
	}
	_, avg := MetricsFrame()
	assert.InDelta(t, 16.0, avg, 0.001)
}
