package auth

// SimpleConfig is a plain value implementation of Config, convenient for
// wiring and tests. Zero values fall back to sensible defaults.
type SimpleConfig struct {
	SigningKey           string
	SigningMethod        string
	ContextKey           string
	TokenExpiration      int
	TokenLookup          string
	AuthScheme           string
	Issuer               string
	Audience             []string
	ResetTokenExpiration string
	Debug                bool
}

var _ Config = SimpleConfig{}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c SimpleConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return "HS256"
	}
	return c.SigningMethod
}

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "jwt"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:Authorization,cookie:jwt"
	}
	return c.TokenLookup
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c SimpleConfig) GetIssuer() string { return c.Issuer }

func (c SimpleConfig) GetAudience() []string { return c.Audience }

func (c SimpleConfig) GetResetTokenExpiration() string {
	if c.ResetTokenExpiration == "" {
		return "10m"
	}
	return c.ResetTokenExpiration
}

func (c SimpleConfig) IsDebug() bool { return c.Debug }
