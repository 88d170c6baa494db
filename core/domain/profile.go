package domain

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BackendKind identifies which driver serves a connection profile.
type BackendKind string

const (
	BackendPostgres BackendKind = "postgres"
	BackendMySQL    BackendKind = "mysql"
	BackendSQLite   BackendKind = "sqlite"
)

// ParseBackendKind converts user input into a BackendKind, accepting the
// common aliases for each backend.
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return BackendPostgres, nil
	case "mysql", "mariadb":
		return BackendMySQL, nil
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unsupported backend kind '%s' (expected postgres, mysql or sqlite)", s)
	}
}

// DefaultPort returns the port used when a profile does not set one.
func (k BackendKind) DefaultPort() int {
	switch k {
	case BackendPostgres:
		return 5432
	case BackendMySQL:
		return 3306
	default:
		return 0
	}
}

// ProfileState is the lifecycle tag of a connection profile.
type ProfileState string

const (
	StateRegistered ProfileState = "registered"
	StateValidated  ProfileState = "validated"
	StateFailed     ProfileState = "failed"
)

// DialParameters holds everything a driver needs to reach a backend.
// Password is never serialized; PasswordEnv names an environment variable
// that is read at dial time instead.
type DialParameters struct {
	Host        string            `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int               `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	Database    string            `json:"database" yaml:"database" validate:"required"`
	User        string            `json:"user,omitempty" yaml:"user,omitempty"`
	Password    string            `json:"-" yaml:"-"`
	PasswordEnv string            `json:"password_env,omitempty" yaml:"password_env,omitempty"`
	Options     map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// ResolvedPassword returns the explicit password, falling back to the
// environment variable named by PasswordEnv.
func (p DialParameters) ResolvedPassword() string {
	if p.Password != "" {
		return p.Password
	}
	if p.PasswordEnv != "" {
		return os.Getenv(p.PasswordEnv)
	}
	return ""
}

// HostOrDefault returns the configured host or localhost.
func (p DialParameters) HostOrDefault() string {
	if p.Host == "" {
		return "localhost"
	}
	return p.Host
}

// PortOr returns the configured port or def when unset.
func (p DialParameters) PortOr(def int) int {
	if p.Port == 0 {
		return def
	}
	return p.Port
}

// ConnectionProfile is a named description of how to reach one backend.
type ConnectionProfile struct {
	Name      string         `validate:"required,max=128,ne=all"`
	Kind      BackendKind    `validate:"required,oneof=postgres mysql sqlite"`
	Params    DialParameters
	State     ProfileState
	LastError string
}

// ProfileSummary is the secret-free view of a profile returned to callers
// and written to persistent stores.
type ProfileSummary struct {
	Name        string            `json:"name" yaml:"name"`
	Kind        BackendKind       `json:"kind" yaml:"kind"`
	Host        string            `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int               `json:"port,omitempty" yaml:"port,omitempty"`
	Database    string            `json:"database" yaml:"database"`
	User        string            `json:"user,omitempty" yaml:"user,omitempty"`
	PasswordEnv string            `json:"password_env,omitempty" yaml:"password_env,omitempty"`
	Options     map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
	State       ProfileState      `json:"state,omitempty" yaml:"-"`
	LastError   string            `json:"last_error,omitempty" yaml:"-"`
}

// Summary projects the profile without its secret.
func (p ConnectionProfile) Summary() ProfileSummary {
	return ProfileSummary{
		Name:        p.Name,
		Kind:        p.Kind,
		Host:        p.Params.Host,
		Port:        p.Params.Port,
		Database:    p.Params.Database,
		User:        p.Params.User,
		PasswordEnv: p.Params.PasswordEnv,
		Options:     p.Params.Options,
		State:       p.State,
		LastError:   p.LastError,
	}
}

// Params rebuilds dial parameters from a stored summary. The password is
// left empty; it is supplied later through PasswordEnv.
func (s ProfileSummary) Params() DialParameters {
	return DialParameters{
		Host:        s.Host,
		Port:        s.Port,
		Database:    s.Database,
		User:        s.User,
		PasswordEnv: s.PasswordEnv,
		Options:     s.Options,
	}
}

var validate = validator.New()

// Validate checks the profile before it enters the registry.
func (p *ConnectionProfile) Validate() error {
	if p == nil {
		return ErrInvalidProfile
	}
	if strings.ContainsAny(p.Name, ", \t\r\n") {
		return &DomainError{Message: fmt.Sprintf("connection name '%s' must not contain commas or whitespace", p.Name)}
	}
	if err := validate.Struct(p); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return &DomainError{Message: strings.Join(msgs, "; ")}
		}
		return &DomainError{Message: err.Error()}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "ConnectionProfile.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "ne":
		return fmt.Sprintf("%s must not be '%s'", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s '%v' must be one of [%s]", field, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("%s failed '%s' validation", field, fe.Tag())
	}
}

// Domain errors
var (
	ErrInvalidProfile = &DomainError{Message: "connection profile cannot be nil"}
)

// DomainError represents a domain-level error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}
