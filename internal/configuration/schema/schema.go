// Package schema defines the immutable configuration records consumed by
// the authentication proxy. Nothing in this package parses a file or an
// environment variable; it only describes the shape of the records that
// internal/configuration produces and internal/supervisor consumes.
package schema

import "time"

// CloudCredentials holds the single integration record used to sign and
// authenticate every call to the cloud 2FA service.
type CloudCredentials struct {
	Endpoint       string
	IntegrationKey string
	SecretKey      string
	PushTimeout    time.Duration
}

// AuthMechanism selects the LDAP bind mechanism used to authenticate
// against a directory profile's configured service account and, indirectly,
// the end user during primary authentication.
type AuthMechanism string

const (
	// AuthMechanismSimple performs a plain LDAP simple bind.
	AuthMechanismSimple AuthMechanism = "simple"
	// AuthMechanismNTLM performs an NTLM bind, which some Active Directory
	// deployments require when simple binds are disabled on the wire.
	AuthMechanismNTLM AuthMechanism = "ntlm"
)

// DirectoryProfile describes one primary directory the proxy can bind
// against. A nil *DirectoryProfile anywhere a profile is expected means
// "pass-through": primary authentication always succeeds.
type DirectoryProfile struct {
	Name          string
	Host          string
	Port          int
	UseTLS        bool
	BaseDN        string
	ServiceDN     string
	ServicePass   string
	SearchFilter  string
	AuthMechanism AuthMechanism
}

// RADIUSClient pairs a NAS source IP with its shared secret.
type RADIUSClient struct {
	IP     string
	Secret string
}

// RADIUSMode selects how a RADIUS binding expects the second factor to be
// supplied.
type RADIUSMode string

const (
	RADIUSModeAuto   RADIUSMode = "auto"
	RADIUSModeConcat RADIUSMode = "concat"
	// RADIUSModeChallenge is accepted by configuration but rejected at
	// validation time: RADIUS challenge/response is explicitly a Non-goal.
	RADIUSModeChallenge RADIUSMode = "challenge"
)

// RADIUSBinding describes one UDP listener. DirectoryRef is the raw name
// the configuration file referenced; Directory is its resolution, nil
// both when DirectoryRef is empty (pass-through, by design) and when it
// names a directory that does not exist (a configuration error the
// validator reports separately).
type RADIUSBinding struct {
	Name         string
	Port         int
	Mode         RADIUSMode
	FailOpen     bool
	DirectoryRef string
	Directory    *DirectoryProfile
	Clients      []RADIUSClient
	ServiceTag   string
}

// LDAPBinding describes one TCP listener. See RADIUSBinding for the
// DirectoryRef/Directory distinction.
type LDAPBinding struct {
	Name              string
	Port              int
	DirectoryRef      string
	Directory         *DirectoryProfile
	ExemptPrimaryBind bool
	ExemptOUs         []string
	ServiceTag        string
}

// Configuration is the complete, validated, immutable record the
// supervisor builds every engine and front end from.
type Configuration struct {
	Cloud           CloudCredentials
	DirectoryByName map[string]*DirectoryProfile
	RADIUS          []RADIUSBinding
	LDAP            []LDAPBinding

	LogLevel string
	LogFile  string
	Debug    bool

	HealthAddress string
	EnablePprof   bool
	EnableExpvar  bool
}
