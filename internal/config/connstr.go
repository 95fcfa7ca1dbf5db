package config

import "fmt"

// MakeConnStr builds a pgx connection string from the database config,
// resolving host and credential refs.
func MakeConnStr(conf Database) (string, error) {
	host, err := conf.Host.Resolve()
	if err != nil {
		return "", fmt.Errorf("loading db host: %w", err)
	}

	user, err := conf.User.Resolve()
	if err != nil {
		return "", fmt.Errorf("loading db user: %w", err)
	}

	password, err := conf.Password.Resolve()
	if err != nil {
		return "", fmt.Errorf("loading db password: %w", err)
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s",
		host, user, password, conf.Name, conf.Port), nil
}
