package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ TokenSource     = (*TokenManager)(nil)
	_ ConfigProvider  = (*LayeredConfigProvider)(nil)
	_ RawConfigLoader = (*EnvConfigLoader)(nil)
	_ RawConfigLoader = FileConfigLoader{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
