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

// Package secrets implements relay secrets: manage pipeline secrets in
// the OS keychain.
package secrets

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/internal/secretstore"
)

// NewSecretsCommand creates the secrets command group.
func NewSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage pipeline secrets",
		Long: `Store, inspect, and remove secrets in the OS keychain. Secrets are
referenced from pipelines as ${{ secrets.NAME }}. At run time an
environment variable of the same name takes precedence over the
keychain entry.`,
	}
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newListCommand())
	return cmd
}

func newSetCommand() *cobra.Command {
	var fromEnv string

	cmd := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret in the keychain",
		Long: `Store a secret. When no value is given on the command line, the value
is read interactively so it never lands in shell history. With
--from-env the value is copied from the named environment variable.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var value string
			switch {
			case len(args) == 2:
				value = args[1]
			case fromEnv != "":
				v, ok := os.LookupEnv(fromEnv)
				if !ok {
					return shared.NewSecretError(
						fmt.Sprintf("environment variable %s is not set", fromEnv), nil)
				}
				value = v
			default:
				v, err := promptSecretValue(name)
				if err != nil {
					return shared.NewSecretError("reading secret value", err)
				}
				value = v
			}

			if err := secretstore.NewResolver().Set(name, value); err != nil {
				return shared.NewSecretError("storing secret", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(shared.NewJSONResponse("secrets set", true))
			}
			cmd.Println(shared.RenderOK("stored secret " + name))
			return nil
		},
	}

	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read the value from this environment variable")
	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := secretstore.NewResolver().Resolve(args[0])
			if err != nil {
				return shared.NewSecretError("resolving secret", err)
			}
			if shared.GetJSON() {
				type response struct {
					shared.JSONResponse
					Name  string `json:"name"`
					Value string `json:"value"`
				}
				return shared.EmitJSON(response{
					JSONResponse: shared.NewJSONResponse("secrets get", true),
					Name:         args[0],
					Value:        value,
				})
			}
			cmd.Println(value)
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret from the keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secretstore.NewResolver().Delete(args[0]); err != nil {
				return shared.NewSecretError("deleting secret", err)
			}
			if shared.GetJSON() {
				return shared.EmitJSON(shared.NewJSONResponse("secrets delete", true))
			}
			cmd.Println(shared.RenderOK("deleted secret " + args[0]))
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keychain-stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := secretstore.NewResolver().List()
			if err != nil {
				return shared.NewSecretError("listing secrets", err)
			}
			if shared.GetJSON() {
				type response struct {
					shared.JSONResponse
					Secrets []string `json:"secrets"`
				}
				return shared.EmitJSON(response{
					JSONResponse: shared.NewJSONResponse("secrets list", true),
					Secrets:      names,
				})
			}
			if len(names) == 0 {
				cmd.Println("No secrets stored.")
				return nil
			}
			for _, name := range names {
				cmd.Println(name)
			}
			return nil
		},
	}
}

// promptSecretValue reads a secret interactively. Without a terminal
// there is nothing to prompt, so the caller must pass the value some
// other way.
func promptSecretValue(name string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal, pass the value as an argument or use --from-env")
	}

	var value string
	input := huh.NewInput().
		Title("Value for " + name).
		EchoMode(huh.EchoModePassword).
		Value(&value)
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", err
	}
	return value, nil
}
