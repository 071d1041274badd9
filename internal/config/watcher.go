package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"perpbot/internal/logger"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher 监听配置文件变化，把变动的可调参数经 Runtime.Update 应用。
// 只比较文件前后两个版本，运行期通过 API 修改的参数不会被未变动的文件值覆盖。
type Watcher struct {
	path    string
	runtime *Runtime
	load    func(string) (*Config, error)
	last    map[string]any
}

func NewWatcher(cfg *Config, rt *Runtime) (*Watcher, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("config watcher requires a loaded config file")
	}
	if rt == nil {
		return nil, fmt.Errorf("config watcher requires runtime")
	}
	s := SettingsFromConfig(cfg)
	return &Watcher{
		path:    cfg.Path,
		runtime: rt,
		load:    Load,
		last:    paramValues(&s),
	}, nil
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()
	// 监听目录而不是文件，编辑器常以 rename 方式保存。
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	logger.Infof("config: watching %s", w.path)
	target := filepath.Clean(w.path)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(reloadDebounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config: watcher error: %v", err)
		case <-debounce:
			debounce = nil
			if n, err := w.Reload(); err != nil {
				logger.Errorf("config: reload %s failed: %v", filepath.Base(w.path), err)
			} else if n > 0 {
				logger.Infof("config: reload applied %d change(s)", n)
			}
		}
	}
}

// Reload re-reads the file and applies parameters whose file value changed.
func (w *Watcher) Reload() (int, error) {
	cfg, err := w.load(w.path)
	if err != nil {
		return 0, err
	}
	s := SettingsFromConfig(cfg)
	next := paramValues(&s)
	changed := diffParams(w.last, next)
	applied := 0
	for _, name := range changed {
		if err := w.runtime.Update(name, next[name]); err != nil {
			logger.Warnf("config: reload skip %s: %v", name, err)
			continue
		}
		applied++
	}
	w.last = next
	return applied, nil
}

// diffParams 返回值发生变化的参数；trading_mode 放在最前，使文件中显式写出的字段覆盖模式预设。
func diffParams(prev, next map[string]any) []string {
	out := make([]string, 0)
	for name, v := range next {
		if !reflect.DeepEqual(prev[name], v) {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i] == ParamTradingMode {
			return true
		}
		if out[j] == ParamTradingMode {
			return false
		}
		return out[i] < out[j]
	})
	return out
}
