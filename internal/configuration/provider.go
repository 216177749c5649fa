// Package configuration loads the proxy's configuration file and overlays
// environment variables on top of it, handing the merged result to the
// validator before anything else consumes it.
package configuration

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/worldposta/authproxy/internal/configuration/schema"
)

// EnvPrefix is stripped from environment variables before they are merged
// into the configuration tree, e.g. AUTHPROXY_CLOUD__SECRET_KEY.
const EnvPrefix = "AUTHPROXY_"

type directoryFile struct {
	Name          string `koanf:"name"`
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	UseTLS        bool   `koanf:"use_tls"`
	BaseDN        string `koanf:"base_dn"`
	ServiceDN     string `koanf:"service_dn"`
	ServicePass   string `koanf:"service_password"`
	SearchFilter  string `koanf:"search_filter"`
	AuthMechanism string `koanf:"auth_mechanism"`
}

type radiusClientFile struct {
	IP     string `koanf:"ip"`
	Secret string `koanf:"secret"`
}

type radiusBindingFile struct {
	Name       string             `koanf:"name"`
	Port       int                `koanf:"port"`
	Mode       string             `koanf:"mode"`
	FailOpen   bool               `koanf:"fail_open"`
	Directory  string             `koanf:"directory"`
	ServiceTag string             `koanf:"service_tag"`
	Clients    []radiusClientFile `koanf:"clients"`
}

type ldapBindingFile struct {
	Name              string   `koanf:"name"`
	Port              int      `koanf:"port"`
	Directory         string   `koanf:"directory"`
	ExemptPrimaryBind bool     `koanf:"exempt_primary_bind"`
	ExemptOUs         []string `koanf:"exempt_ous"`
	ServiceTag        string   `koanf:"service_tag"`
}

type fileConfiguration struct {
	Cloud struct {
		Endpoint       string `koanf:"endpoint"`
		IntegrationKey string `koanf:"integration_key"`
		SecretKey      string `koanf:"secret_key"`
		PushTimeout    int    `koanf:"push_timeout"`
	} `koanf:"cloud"`
	Directories []directoryFile     `koanf:"directories"`
	RADIUS      []radiusBindingFile `koanf:"radius"`
	LDAP        []ldapBindingFile   `koanf:"ldap"`
	Log         struct {
		Level string `koanf:"level"`
		File  string `koanf:"file"`
		Debug bool   `koanf:"debug"`
	} `koanf:"log"`
	Health struct {
		Address      string `koanf:"address"`
		EnablePprof  bool   `koanf:"enable_pprof"`
		EnableExpvar bool   `koanf:"enable_expvar"`
	} `koanf:"health"`
}

// Load reads path (YAML) and overlays AUTHPROXY_-prefixed environment
// variables, then translates the result into an immutable
// schema.Configuration. It does not validate cross-field invariants; call
// validator.Validate on the result for that.
func Load(path string) (*schema.Configuration, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "loading configuration file %q", path)
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})

	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrap(err, "loading environment overrides")
	}

	// Environment overrides arrive as strings; weakly-typed decoding turns
	// "true" and "60" into the bools and ints the schema expects.
	var raw fileConfiguration
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToSliceHookFunc(","),
			WeaklyTypedInput: true,
			Result:           &raw,
			TagName:          "koanf",
		},
	}

	if err := k.UnmarshalWithConf("", &raw, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, "unmarshalling configuration")
	}

	return translate(&raw), nil
}

func translate(raw *fileConfiguration) *schema.Configuration {
	cfg := &schema.Configuration{
		DirectoryByName: make(map[string]*schema.DirectoryProfile, len(raw.Directories)),
		LogLevel:        raw.Log.Level,
		LogFile:         raw.Log.File,
		Debug:           raw.Log.Debug,
		HealthAddress:   raw.Health.Address,
		EnablePprof:     raw.Health.EnablePprof,
		EnableExpvar:    raw.Health.EnableExpvar,
	}

	cfg.Cloud = schema.CloudCredentials{
		Endpoint:       raw.Cloud.Endpoint,
		IntegrationKey: raw.Cloud.IntegrationKey,
		SecretKey:      raw.Cloud.SecretKey,
		PushTimeout:    time.Duration(raw.Cloud.PushTimeout) * time.Second,
	}

	for _, d := range raw.Directories {
		mech := schema.AuthMechanismSimple
		if strings.EqualFold(d.AuthMechanism, string(schema.AuthMechanismNTLM)) {
			mech = schema.AuthMechanismNTLM
		}

		cfg.DirectoryByName[d.Name] = &schema.DirectoryProfile{
			Name:          d.Name,
			Host:          d.Host,
			Port:          d.Port,
			UseTLS:        d.UseTLS,
			BaseDN:        d.BaseDN,
			ServiceDN:     d.ServiceDN,
			ServicePass:   d.ServicePass,
			SearchFilter:  d.SearchFilter,
			AuthMechanism: mech,
		}
	}

	for _, r := range raw.RADIUS {
		binding := schema.RADIUSBinding{
			Name:         r.Name,
			Port:         r.Port,
			Mode:         schema.RADIUSMode(strings.ToLower(r.Mode)),
			FailOpen:     r.FailOpen,
			DirectoryRef: r.Directory,
			Directory:    cfg.DirectoryByName[r.Directory],
			ServiceTag:   r.ServiceTag,
		}

		for _, c := range r.Clients {
			binding.Clients = append(binding.Clients, schema.RADIUSClient{IP: c.IP, Secret: c.Secret})
		}

		cfg.RADIUS = append(cfg.RADIUS, binding)
	}

	for _, l := range raw.LDAP {
		cfg.LDAP = append(cfg.LDAP, schema.LDAPBinding{
			Name:              l.Name,
			Port:              l.Port,
			DirectoryRef:      l.Directory,
			Directory:         cfg.DirectoryByName[l.Directory],
			ExemptPrimaryBind: l.ExemptPrimaryBind,
			ExemptOUs:         l.ExemptOUs,
			ServiceTag:        l.ServiceTag,
		})
	}

	return cfg
}
