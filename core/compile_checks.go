package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ProviderResolver   = (*ProviderRegistry)(nil)
	_ LedgerStore        = (*MemoryLedgerStore)(nil)
	_ PaymentService     = (*Service)(nil)
	_ Clock              = SystemClock{}
	_ Clock              = ClockFunc(nil)
	_ ReferenceGenerator = UUIDReferenceGenerator{}
	_ MetricsRecorder    = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
