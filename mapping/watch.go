package mapping

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hatlonely/tablekit/log"
	"github.com/pkg/errors"
)

// Watcher 监听映射文件变化并重新加载
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*TableMapping, error)
	logger   log.Logger
	debounce time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

type WatchOption func(*Watcher)

// WithWatchLogger 设置日志
func WithWatchLogger(logger log.Logger) WatchOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce 合并短时间内的多次写事件，默认 100ms
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// Watch 监听 path 所在目录，文件写入、创建或被替换时重新加载并回调 onChange
func Watch(path string, onChange func(*TableMapping, error), opts ...WatchOption) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("onChange callback is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "invalid file path")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	// 编辑器通常以重命名方式保存文件，监听目录才能收到事件
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		_ = fw.Close()
		return nil, errors.Wrap(err, "failed to add directory to watcher")
	}

	w := &Watcher{
		path:     absPath,
		watcher:  fw,
		onChange: onChange,
		logger:   log.Default(),
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			tm, err := LoadFile(w.path)
			if err != nil {
				w.logger.Warn("reload table mapping failed", "path", w.path, "error", err)
			} else {
				w.logger.Info("table mapping reloaded", "path", w.path, "table", tm.QualifiedName())
			}
			w.onChange(tm, err)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("mapping watcher error", "path", w.path, "error", err)
		}
	}
}

// Close 停止监听
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
