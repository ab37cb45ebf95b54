package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Holder publishes the current MTF configuration. Readers always get a whole
// normalized value; Store swaps the pointer and notifies subscribers.
type Holder struct {
	current atomic.Pointer[MTFConfig]

	mu          sync.Mutex
	subscribers []func(MTFConfig)
}

// NewHolder normalizes initial and stores it.
func NewHolder(initial MTFConfig) *Holder {
	h := &Holder{}
	cfg := initial.Normalize()
	h.current.Store(&cfg)
	return h
}

// Load returns the active configuration.
func (h *Holder) Load() MTFConfig {
	return *h.current.Load()
}

// Subscribe registers fn to receive every configuration stored after this call.
func (h *Holder) Subscribe(fn func(MTFConfig)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// Store normalizes cfg, publishes it and fans it out to subscribers.
func (h *Holder) Store(cfg MTFConfig) {
	next := cfg.Normalize()
	h.current.Store(&next)

	h.mu.Lock()
	subs := append([]func(MTFConfig){}, h.subscribers...)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// Watch re-reads the config file on change and stores the new MTF section.
// A file that fails to decode is logged and the previous configuration stays active.
func Watch(v *viper.Viper, h *Holder, logger *zap.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		h.Store(cfg.MTF)
		logger.Info("mtf config reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
	})
	v.WatchConfig()
}
