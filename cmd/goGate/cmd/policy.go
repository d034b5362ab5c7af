package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goGate/policy"
)

// errDenied makes `policy check` exit non-zero on deny.
var errDenied = errors.New("denied")

var check struct {
	file    string
	subject string
	domain  string
	object  string
	action  string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect authorization policies",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one subject, domain, object, action tuple",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := policy.LoadFile(check.file)
		if err != nil {
			return err
		}
		enforcer, err := policy.NewEnforcer(p, policy.Options{})
		if err != nil {
			return err
		}

		rule, ok := enforcer.Match(check.subject, check.domain, check.object, check.action)
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "deny")
			return errDenied
		}
		fmt.Fprintf(cmd.OutOrStdout(), "permit (%s)\n", rule)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCheckCmd)

	flags := policyCheckCmd.Flags()
	flags.StringVar(&check.file, "file", "policy.csv", "Policy file (.csv or .yaml)")
	flags.StringVar(&check.subject, "subject", "anon", "Role name")
	flags.StringVar(&check.domain, "domain", "localhost", "Request host")
	flags.StringVar(&check.object, "object", "", "Request path")
	flags.StringVar(&check.action, "action", "GET", "HTTP method")
	_ = policyCheckCmd.MarkFlagRequired("object")
}
