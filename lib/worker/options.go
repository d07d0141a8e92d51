// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"errors"
	"fmt"
	"slices"
)

// Email generation strategies understood by the registration worker.
const (
	StrategySingle    = "single"
	StrategyPlusAlias = "plus_alias"
	StrategyCatchAll  = "catch_all"
	StrategyPool      = "pool"
)

// DefaultStrategy is used when Options.EmailStrategy is empty.
const DefaultStrategy = StrategyCatchAll

// Strategies lists every valid EmailStrategy.
var Strategies = []string{StrategySingle, StrategyPlusAlias, StrategyCatchAll, StrategyPool}

// Options is the registration run configuration handed to the worker
// through its environment and arguments.
type Options struct {
	Headless        bool   `json:"headless"`
	SpoofingEnabled bool   `json:"spoofing_enabled"`
	IMAPServer      string `json:"imap_server,omitempty"`
	IMAPUser        string `json:"imap_user,omitempty"`
	IMAPPassword    string `json:"imap_password,omitempty"`
	EmailDomain     string `json:"email_domain,omitempty"`
	EmailStrategy   string `json:"email_strategy,omitempty"`
}

// Validate reports every missing or invalid setting at once.
func (o Options) Validate() error {
	var errs []error
	if o.IMAPServer == "" {
		errs = append(errs, errors.New("imap server is required"))
	}
	if o.IMAPUser == "" {
		errs = append(errs, errors.New("imap user is required"))
	}
	if o.IMAPPassword == "" {
		errs = append(errs, errors.New("imap password is required"))
	}
	if o.EmailStrategy != "" && !slices.Contains(Strategies, o.EmailStrategy) {
		errs = append(errs, fmt.Errorf("unknown email strategy %q (want one of %v)", o.EmailStrategy, Strategies))
	}
	return errors.Join(errs...)
}

// Apply returns a copy of base with the options added as environment
// variables, plus --headless when requested.
func (o Options) Apply(base Spec) Spec {
	strategy := o.EmailStrategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	spoofing := "0"
	if o.SpoofingEnabled {
		spoofing = "1"
	}

	spec := base
	spec.Args = slices.Clone(base.Args)
	spec.Env = append(slices.Clone(base.Env),
		"PYTHONUNBUFFERED=1",
		"PYTHONIOENCODING=utf-8",
		"IMAP_SERVER="+o.IMAPServer,
		"IMAP_USER="+o.IMAPUser,
		"IMAP_PASSWORD="+o.IMAPPassword,
		"EMAIL_DOMAIN="+o.EmailDomain,
		"EMAIL_STRATEGY="+strategy,
		"SPOOFING_ENABLED="+spoofing,
	)
	if o.Headless && !slices.Contains(spec.Args, "--headless") {
		spec.Args = append(spec.Args, "--headless")
	}
	return spec
}
