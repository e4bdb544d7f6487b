package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ EventProcessor          = (*Service)(nil)
	_ ActivityContentStrategy = HumanActivity{}
	_ ActivityContentStrategy = AutomatedActivity{}
	_ ConfigProvider          = (*CfgxConfigProvider)(nil)
	_ OptionsResolver         = GoOptionsResolver{}
	_ RawConfigLoader         = StaticConfigLoader{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
