// 配置文件变更监听。
//
// 纯轮询实现：按固定间隔 os.Stat 对比修改时间与大小，
// 变更经防抖窗口合并后回调。编辑器原子替换（写临时文件再 rename）
// 在轮询视角下等同一次修改，无需额外处理。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp 是轮询能观察到的三种文件变化。
type FileOp int

const (
	// FileOpCreate 文件出现（此前不存在或被删后重建）
	FileOpCreate FileOp = iota
	// FileOpWrite 文件内容被修改
	FileOpWrite
	// FileOpRemove 文件消失
	FileOpRemove
)

// String 返回操作名。
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	}
	return "UNKNOWN"
}

// FileEvent 是一次防抖合并后的文件变更。
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// fileState 是上次轮询观察到的文件指纹。
type fileState struct {
	modTime time.Time
	size    int64
}

// FileWatcher 轮询一组配置文件并在变更后回调。
// 同一路径在防抖窗口内的多次变更只回调一次，以最后一次为准。
type FileWatcher struct {
	mu        sync.Mutex
	paths     []string
	poll      time.Duration
	debounce  time.Duration
	callbacks []func(FileEvent)
	states    map[string]fileState
	running   bool
	stop      chan struct{}
	logger    *zap.Logger
}

// WatcherOption 配置 FileWatcher。
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置防抖窗口。
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounce = d }
}

// WithPollInterval 设置轮询间隔。测试中可调小以加速。
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.poll = d }
}

// WithWatcherLogger 设置日志器。
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) { w.logger = logger }
}

// NewFileWatcher 创建监听器。路径不存在不报错（等它被创建），
// 其他 stat 失败视为配置错误。
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:    paths,
		poll:     time.Second,
		debounce: 100 * time.Millisecond,
		states:   make(map[string]fileState),
		stop:     make(chan struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("stat %s: %w", p, err)
			}
			w.logger.Warn("watched config file absent, waiting for creation",
				zap.String("path", p))
		}
	}
	return w, nil
}

// OnChange 注册变更回调。须在 Start 前调用完毕。
func (w *FileWatcher) OnChange(cb func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start 启动轮询循环。重复启动报错。
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("file watcher already running")
	}
	w.running = true

	// 起始指纹：启动前已存在的内容不算变更
	for _, p := range w.paths {
		if info, err := os.Stat(p); err == nil {
			w.states[p] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}

	go w.loop(ctx)

	w.logger.Info("config file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.poll),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop 停止监听。幂等。
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.stop)
	w.running = false
	w.logger.Info("config file watcher stopped")
	return nil
}

// IsRunning 返回监听器是否在运行。
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// loop 是唯一的后台 goroutine：轮询采集与防抖派发都在这一个
// select 里完成，pending 只被本 goroutine 触碰，天然无竞争。
func (w *FileWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	pending := make(map[string]FileEvent)
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			for _, ev := range w.scan() {
				pending[ev.Path] = ev
			}
			if len(pending) > 0 && flush == nil {
				flush = time.After(w.debounce)
			}
		case <-flush:
			flush = nil
			events := make([]FileEvent, 0, len(pending))
			for _, ev := range pending {
				events = append(events, ev)
			}
			pending = make(map[string]FileEvent)
			w.dispatch(events)
		}
	}
}

// scan 对比全部路径的指纹，返回本轮检测到的变更。
func (w *FileWatcher) scan() []FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	var events []FileEvent
	now := time.Now()
	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil {
			if _, tracked := w.states[p]; tracked && os.IsNotExist(err) {
				delete(w.states, p)
				events = append(events, FileEvent{Path: p, Op: FileOpRemove, Timestamp: now})
			}
			continue
		}

		next := fileState{modTime: info.ModTime(), size: info.Size()}
		prev, tracked := w.states[p]
		switch {
		case !tracked:
			w.states[p] = next
			events = append(events, FileEvent{Path: p, Op: FileOpCreate, Timestamp: now})
		case next != prev:
			w.states[p] = next
			events = append(events, FileEvent{Path: p, Op: FileOpWrite, Timestamp: now})
		}
	}
	return events
}

// dispatch 在锁外调用回调，回调里允许再触发重载。
func (w *FileWatcher) dispatch(events []FileEvent) {
	w.mu.Lock()
	cbs := make([]func(FileEvent), len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.Unlock()

	for _, ev := range events {
		w.logger.Debug("config file changed",
			zap.String("path", ev.Path),
			zap.String("op", ev.Op.String()))
		for _, cb := range cbs {
			cb(ev)
		}
	}
}
