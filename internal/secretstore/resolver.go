// Copyright 2025 The Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secretstore resolves pipeline secrets. The process
// environment wins over the OS keychain, so CI environments can inject
// secrets without touching the keychain and developers can keep
// long-lived credentials out of their shell profiles.
package secretstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/zalando/go-keyring"

	relayerrors "github.com/relayci/relay/pkg/errors"
)

// Service is the keychain service name for all relay entries.
const Service = "relay"

// indexKey holds the JSON list of stored secret names. The keychain
// API cannot enumerate entries, so the store maintains its own index.
const indexKey = "__relay_index__"

// Resolver resolves secret names to values.
type Resolver struct {
	service string
}

// NewResolver creates a resolver against the default keychain service.
func NewResolver() *Resolver {
	return &Resolver{service: Service}
}

// Resolve returns the value for name: the process environment first,
// then the OS keychain.
func (r *Resolver) Resolve(name string) (string, error) {
	if value, ok := os.LookupEnv(name); ok {
		return value, nil
	}

	value, err := keyring.Get(r.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", &relayerrors.NotFoundError{Resource: "secret", ID: name}
		}
		return "", fmt.Errorf("keychain access for %s: %w", name, err)
	}
	return value, nil
}

// ResolveAll resolves every name, returning the values keyed by name.
// Missing secrets fail the whole resolution; a pipeline referencing an
// unset secret should not start.
func (r *Resolver) ResolveAll(names []string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, name := range names {
		value, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		values[name] = value
	}
	return values, nil
}

// Set stores a secret in the OS keychain and records it in the index.
func (r *Resolver) Set(name, value string) error {
	if name == "" || name == indexKey {
		return fmt.Errorf("invalid secret name: %q", name)
	}
	if err := keyring.Set(r.service, name, value); err != nil {
		return fmt.Errorf("storing secret %s: %w", name, err)
	}
	return r.updateIndex(func(names map[string]bool) {
		names[name] = true
	})
}

// Delete removes a secret from the OS keychain.
func (r *Resolver) Delete(name string) error {
	if err := keyring.Delete(r.service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return &relayerrors.NotFoundError{Resource: "secret", ID: name}
		}
		return fmt.Errorf("deleting secret %s: %w", name, err)
	}
	return r.updateIndex(func(names map[string]bool) {
		delete(names, name)
	})
}

// List returns the names of keychain-stored secrets in sorted order.
// Environment-provided secrets are not tracked.
func (r *Resolver) List() ([]string, error) {
	names, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) readIndex() (map[string]bool, error) {
	raw, err := keyring.Get(r.service, indexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("reading secret index: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("corrupt secret index: %w", err)
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set, nil
}

func (r *Resolver) updateIndex(mutate func(map[string]bool)) error {
	names, err := r.readIndex()
	if err != nil {
		return err
	}
	mutate(names)

	list := make([]string, 0, len(names))
	for name := range names {
		list = append(list, name)
	}
	sort.Strings(list)

	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := keyring.Set(r.service, indexKey, string(raw)); err != nil {
		return fmt.Errorf("writing secret index: %w", err)
	}
	return nil
}
