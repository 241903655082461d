package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"

	"go.uber.org/zap"
)

// 隊列錯誤
var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue manager is closed")
)

// DefaultJobTimeout 單一工作的執行時限
const DefaultJobTimeout = 5 * time.Second

// Job 背景工作
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	FailedCount    int64 `json:"failed_count"`
	DroppedCount   int64 `json:"dropped_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 隊列管理器
type Manager struct {
	queue      chan *Job
	workers    int
	maxSize    int
	jobTimeout time.Duration

	processed int64
	failed    int64
	dropped   int64

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewManager 創建新的隊列管理器
func NewManager(cfg *config.WritebackConfig) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Manager{
		queue:      make(chan *Job, maxSize),
		workers:    workers,
		maxSize:    maxSize,
		jobTimeout: DefaultJobTimeout,
	}
}

// Start 啟動 worker
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	common.LogInfo("Queue workers started",
		zap.Int("workers", m.workers),
		zap.Int("max_queue_size", m.maxSize),
	)
}

// worker 處理隊列中的工作直到隊列關閉
func (m *Manager) worker(id int) {
	defer m.wg.Done()

	for job := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), m.jobTimeout)
		err := job.Run(ctx)
		cancel()

		if err != nil {
			atomic.AddInt64(&m.failed, 1)
			common.LogError("Queue job failed",
				zap.Int("worker", id),
				zap.String("job", job.Name),
				zap.Error(err),
			)
			continue
		}
		atomic.AddInt64(&m.processed, 1)
	}
}

// Enqueue 將工作加入隊列；隊列已滿時直接丟棄
func (m *Manager) Enqueue(job *Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrQueueClosed
	}

	select {
	case m.queue <- job:
		return nil
	default:
		atomic.AddInt64(&m.dropped, 1)
		common.LogWarn("Queue full, job dropped",
			zap.String("job", job.Name),
			zap.Int("max_queue_size", m.maxSize),
		)
		return ErrQueueFull
	}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	return &Status{
		QueueLength:    len(m.queue),
		ProcessedCount: atomic.LoadInt64(&m.processed),
		FailedCount:    atomic.LoadInt64(&m.failed),
		DroppedCount:   atomic.LoadInt64(&m.dropped),
		MaxQueueSize:   m.maxSize,
		Workers:        m.workers,
	}
}

// Close 停止接收新工作，等待已排入的工作完成
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	started := m.started
	m.mu.Unlock()

	if started {
		m.wg.Wait()
	}
}
