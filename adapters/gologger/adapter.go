package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	LoggerPayments      = "payments"
	LoggerWebhooks      = "payments.webhooks"
	LoggerNotifications = "payments.notifications"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Named returns the named child logger of provider, or fallback when the
// provider has none.
func Named(provider glog.LoggerProvider, name string, fallback glog.Logger) glog.Logger {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return named
		}
	}
	return glog.Ensure(fallback)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the notification worker logger and returns the
// go-job bridges for queue implementations that log through go-job.
func ResolveForJob(
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(LoggerNotifications, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
