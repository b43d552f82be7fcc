package config

type ProviderConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetRedirectURI() string
	GetDefaultProvider() string
}

type Providers struct{}

var _ ProviderConfig = Providers{}

func (Providers) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (Providers) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

func (Providers) GetRedirectURI() string {
	return GetEnv("REDIRECT_URI", "http://localhost:5173/callback")
}

func (Providers) GetDefaultProvider() string {
	return GetEnv("DEFAULT_PROVIDER", "google")
}
