package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSession_StartsPending(t *testing.T) {
	s := NewSession("sess-1", "task-1")
	assert.Equal(t, "sess-1", s.ID())
	assert.Equal(t, "task-1", s.TaskID())
	assert.Equal(t, SessionStatusPending, s.Status())
	assert.Empty(t, s.Responses())
}

func TestSession_Start_TransitionsToRunning(t *testing.T) {
	s := NewSession("sess-1", "task-1")
	s.Start()
	assert.Equal(t, SessionStatusRunning, s.Status())
}

func TestSession_Finish_TransitionsToTerminalStatusAndStampsEnd(t *testing.T) {
	s := NewSession("sess-1", "task-1")
	s.Start()
	s.Finish(SessionStatusCompleted)

	assert.Equal(t, SessionStatusCompleted, s.Status())
	assert.Greater(t, s.Duration(), time.Duration(0))
}

func TestSession_RecordResponse_AppendsAndIsReturnedByResponses(t *testing.T) {
	s := NewSession("sess-1", "task-1")
	s.RecordResponse(WorkerResponse{WorkerIndex: 0, Verified: true})
	s.RecordResponse(WorkerResponse{WorkerIndex: 1, Verified: false})

	got := s.Responses()
	assert.Len(t, got, 2)
	assert.True(t, got[0].Verified)
	assert.False(t, got[1].Verified)
}

func TestSession_Responses_ReturnsCopyNotSharedSlice(t *testing.T) {
	s := NewSession("sess-1", "task-1")
	s.RecordResponse(WorkerResponse{WorkerIndex: 0})

	got := s.Responses()
	got[0].WorkerIndex = 99

	assert.Equal(t, 0, s.Responses()[0].WorkerIndex)
}

func TestSession_RecordResponse_SafeForConcurrentWorkers(t *testing.T) {
	s := NewSession("sess-1", "task-1")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			s.RecordResponse(WorkerResponse{WorkerIndex: idx})
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Responses(), 8)
}

func TestSession_Duration_GrowsWhileRunning(t *testing.T) {
	s := NewSession("sess-1", "task-1")
	time.Sleep(1 * time.Millisecond)
	assert.Greater(t, s.Duration(), time.Duration(0))
}
