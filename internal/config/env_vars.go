package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	dataFileEnvVar = "DATA_FILE"
	originEnvVar   = "ORIGIN"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "5173")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "zkLogin")
}

// GetDataFile returns the path of the file-backed store holding the session
// record and salt cache.
func (EnvVars) GetDataFile() string {
	return GetEnv(dataFileEnvVar, "./data/zklogin.json")
}

// GetOrigin returns the origin inter-window messages are stamped with and
// checked against, and the host of the callback redirect.
func (EnvVars) GetOrigin() string {
	return GetEnv(originEnvVar, "http://localhost:5173")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
