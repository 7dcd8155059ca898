package util

import (
	"sync"

	"github.com/autoflow/autoflow/logger"
	"go.uber.org/zap"
)

type Task any

// WorkerPool drains a single bounded task channel with a fixed number of
// goroutines. Submitting on a full channel blocks the sender.
type WorkerPool struct {
	name     string
	size     int
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(Task) error
	taskChan chan Task
}

func NewWorkerPool(name string, size int, capacity int, wg *sync.WaitGroup, handler func(Task) error) *WorkerPool {
	return &WorkerPool{
		name:     name,
		size:     size,
		stop:     make(chan struct{}),
		wg:       wg,
		handler:  handler,
		taskChan: make(chan Task, capacity),
	}
}

func (w *WorkerPool) Start() {
	for i := 0; i < w.size; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case task := <-w.taskChan:
					err := w.handler(task)
					if err != nil {
						logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Any("task", task), zap.Error(err))
					}
				case <-w.stop:
					return
				}
			}
		}()
	}
	logger.Info("worker pool started", zap.String("worker", w.name), zap.Int("size", w.size))
}

func (w *WorkerPool) Sender() chan<- Task {
	return w.taskChan
}

func (w *WorkerPool) Stop() {
	logger.Info("stopping worker pool", zap.String("worker", w.name))
	close(w.stop)
}
