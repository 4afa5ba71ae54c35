package core

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// Scheduler 先进先出的任务队列，wake 用来唤醒空闲的 worker
type Scheduler struct {
	TaskQueue *linkedlistqueue.Queue
	mu        sync.Mutex
	wake      chan struct{}
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		TaskQueue: linkedlistqueue.New(),
		wake:      make(chan struct{}, 1),
	}
}

func (scheduler *Scheduler) NextTask() *Task {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()

	value, ok := scheduler.TaskQueue.Dequeue()
	if !ok {
		return nil
	}
	if !scheduler.TaskQueue.Empty() {
		scheduler.signal()
	}

	task, ok := value.(*Task)
	if !ok {
		return nil
	}
	return task
}

func (scheduler *Scheduler) EnqueueTask(task *Task) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	scheduler.TaskQueue.Enqueue(task)
	scheduler.signal()
}

// Drain 清空队列并返回所有未执行的任务
func (scheduler *Scheduler) Drain() []*Task {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()

	var tasks []*Task
	for {
		value, ok := scheduler.TaskQueue.Dequeue()
		if !ok {
			return tasks
		}
		if task, ok := value.(*Task); ok {
			tasks = append(tasks, task)
		}
	}
}

func (scheduler *Scheduler) Empty() bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return scheduler.TaskQueue.Empty()
}

func (scheduler *Scheduler) Size() int {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return scheduler.TaskQueue.Size()
}

func (scheduler *Scheduler) Wake() <-chan struct{} {
	return scheduler.wake
}

func (scheduler *Scheduler) signal() {
	select {
	case scheduler.wake <- struct{}{}:
	default:
	}
}
