package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
)

// Parameter is one secret the service resolves through an _SSM_PARAM
// pointer at startup. EnvVar is the variable the service reads and Key the
// category/key under /{env}/petcare/.
type Parameter struct {
	EnvVar   string
	Key      string
	Required bool
	Validate func(value string) error
}

// Inventory lists every secret of the billing webhook service.
func Inventory() []Parameter {
	return []Parameter{
		{EnvVar: "DATABASE_URL", Key: "database/url", Required: true, Validate: urlWithScheme("postgres", "postgresql")},
		{EnvVar: "STRIPE_SECRET_KEY", Key: "billing/stripe_secret_key", Required: true, Validate: hasPrefix("sk_", "rk_")},
		{EnvVar: "STRIPE_WEBHOOK_SECRET", Key: "billing/stripe_webhook_secret", Required: true, Validate: hasPrefix("whsec_")},
		{EnvVar: "REDIS_URL", Key: "cache/redis_url", Validate: urlWithScheme("redis", "rediss")},
		{EnvVar: "SENTRY_DSN", Key: "observability/sentry_dsn", Validate: urlWithScheme("https")},
	}
}

func hasPrefix(prefixes ...string) func(string) error {
	return func(v string) error {
		for _, p := range prefixes {
			if strings.HasPrefix(v, p) {
				return nil
			}
		}
		return fmt.Errorf("must start with one of %s", strings.Join(prefixes, ", "))
	}
}

func urlWithScheme(schemes ...string) func(string) error {
	return func(v string) error {
		u, err := url.Parse(v)
		if err != nil || u.Host == "" {
			return fmt.Errorf("must be an absolute URL")
		}
		for _, s := range schemes {
			if u.Scheme == s {
				return nil
			}
		}
		return fmt.Errorf("scheme must be one of %s", strings.Join(schemes, ", "))
	}
}

// Outcome is the per-parameter result of a run.
type Outcome string

const (
	OutcomeWritten Outcome = "written"
	OutcomeExists  Outcome = "exists"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDryRun  Outcome = "dry-run"
)

// Runner copies secrets from the operator's environment into SSM.
type Runner struct {
	SSM       *SSMManager
	Lookup    func(key string) (string, bool)
	Overwrite bool
	DryRun    bool
	Out       io.Writer
}

// Run validates every value before writing any, so a typo never leaves the
// environment half-configured.
func (r *Runner) Run(ctx context.Context, params []Parameter) (map[string]Outcome, error) {
	values := make(map[string]string, len(params))
	var problems []string
	for _, p := range params {
		v, _ := r.Lookup(p.EnvVar)
		v = strings.TrimSpace(v)
		if v == "" {
			if p.Required {
				problems = append(problems, fmt.Sprintf("%s: not set", p.EnvVar))
			}
			continue
		}
		if p.Validate != nil {
			if err := p.Validate(v); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", p.EnvVar, err))
				continue
			}
		}
		values[p.EnvVar] = v
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid input:\n  %s", strings.Join(problems, "\n  "))
	}

	results := make(map[string]Outcome, len(params))
	for _, p := range params {
		v, ok := values[p.EnvVar]
		if !ok {
			results[p.EnvVar] = OutcomeSkipped
			continue
		}
		path := r.SSM.SSMPath(p.Key)
		if r.DryRun {
			results[p.EnvVar] = OutcomeDryRun
			continue
		}
		if !r.Overwrite {
			exists, err := r.SSM.ParameterExists(ctx, path)
			if err != nil {
				return results, err
			}
			if exists {
				results[p.EnvVar] = OutcomeExists
				continue
			}
		}
		if err := r.SSM.PutSecret(ctx, path, v, r.Overwrite); err != nil {
			return results, err
		}
		results[p.EnvVar] = OutcomeWritten
	}
	return results, nil
}

// WritePointers prints the NAME_SSM_PARAM=path lines to paste into the
// deployment environment. Skipped parameters are omitted.
func (r *Runner) WritePointers(params []Parameter, results map[string]Outcome) {
	lines := make([]string, 0, len(params))
	for _, p := range params {
		if results[p.EnvVar] == OutcomeSkipped || results[p.EnvVar] == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s_SSM_PARAM=%s", p.EnvVar, r.SSM.SSMPath(p.Key)))
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(r.Out, l)
	}
}
