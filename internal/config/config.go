package config

type Config interface {
	EnvConfig
	ProviderConfig
	FlowConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFile() string
	GetOrigin() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Providers
	Flow
}

func New() Config {
	return mainConfig{}
}
