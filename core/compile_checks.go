package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ EventPublisher  = (*EventBus)(nil)
	_ DurableJobQueue = (*JobScheduler)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
