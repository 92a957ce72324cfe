package poller

import "go.uber.org/fx"

type fakeLifecycle struct {
	hooks []fx.Hook
}

func (l *fakeLifecycle) Append(h fx.Hook) {
	l.hooks = append(l.hooks, h)
}
