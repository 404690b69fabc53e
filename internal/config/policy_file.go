package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/models"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
	"gopkg.in/yaml.v3"
)

var errPolicyFile = errors.New("invalid reconciliation policy file")

// policyFile is the YAML layout of RECONCILIATION_POLICY_FILE:
//
//	policies:
//	  pending:
//	    max_attempts: 30
//	    initial_delay: 2s
//	    max_delay: 20s
//	    multiplier: 1.5
type policyFile struct {
	Policies map[string]policyOverride `yaml:"policies"`
}

// policyOverride only changes the fields that are present
type policyOverride struct {
	MaxAttempts                *int     `yaml:"max_attempts"`
	InitialDelay               *string  `yaml:"initial_delay"`
	MaxDelay                   *string  `yaml:"max_delay"`
	Multiplier                 *float64 `yaml:"multiplier"`
	LookupTimeout              *string  `yaml:"lookup_timeout"`
	ManualVerifyAfter          *string  `yaml:"manual_verify_after"`
	ManualVerifyOnFailure      *bool    `yaml:"manual_verify_on_failure"`
	AllowLatestBookingFallback *bool    `yaml:"allow_latest_booking_fallback"`
}

// LoadPolicyFile reads a YAML policy file and applies it on top of base
func LoadPolicyFile(path string, base map[models.Screen]reconciliation.Policy) (map[models.Screen]reconciliation.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicies(data, base)
}

// ParsePolicies applies YAML policy overrides on top of base without modifying it
func ParsePolicies(data []byte, base map[models.Screen]reconciliation.Policy) (map[models.Screen]reconciliation.Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", errPolicyFile, err)
	}

	policies := make(map[models.Screen]reconciliation.Policy, len(base))
	for screen, policy := range base {
		policies[screen] = policy
	}

	for name, override := range file.Policies {
		screen, ok := models.ParseScreen(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown screen %q", errPolicyFile, name)
		}
		policy, err := override.apply(policies[screen])
		if err != nil {
			return nil, fmt.Errorf("%w: screen %s: %v", errPolicyFile, name, err)
		}
		policies[screen] = policy
	}
	return policies, nil
}

func (o policyOverride) apply(p reconciliation.Policy) (reconciliation.Policy, error) {
	if o.MaxAttempts != nil {
		p.MaxAttempts = *o.MaxAttempts
	}
	if o.Multiplier != nil {
		p.Multiplier = *o.Multiplier
	}
	if o.ManualVerifyOnFailure != nil {
		p.ManualVerifyOnFailure = *o.ManualVerifyOnFailure
	}
	if o.AllowLatestBookingFallback != nil {
		p.AllowLatestBookingFallback = *o.AllowLatestBookingFallback
	}

	durations := []struct {
		name  string
		value *string
		dst   *time.Duration
	}{
		{"initial_delay", o.InitialDelay, &p.InitialDelay},
		{"max_delay", o.MaxDelay, &p.MaxDelay},
		{"lookup_timeout", o.LookupTimeout, &p.LookupTimeout},
		{"manual_verify_after", o.ManualVerifyAfter, &p.ManualVerifyAfter},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return p, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return p, nil
}
