package config

const redacted = "[redacted]"

// Redacted returns a copy of the configuration safe for logging, with every
// secret-bearing field masked.
func (c *Config) Redacted() Config {
	out := *c

	if out.Wallet.PrivateKey != "" {
		out.Wallet.PrivateKey = redacted
	}
	if out.Wallet.KeyPassword != "" {
		out.Wallet.KeyPassword = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	if out.Postgres.DSN != "" {
		out.Postgres.DSN = redacted
	}
	if out.Postgres.Password != "" {
		out.Postgres.Password = redacted
	}
	if out.S3.AccessKey != "" {
		out.S3.AccessKey = redacted
	}
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = redacted
	}
	return out
}
