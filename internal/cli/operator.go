package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/model"
)

// NewOperatorCommand creates the operator command group.
func NewOperatorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage console operators",
	}
	cmd.AddCommand(newOperatorCreateCommand(rootOpts))
	cmd.AddCommand(newOperatorPasswordCommand(rootOpts))
	return cmd
}

type operatorOptions struct {
	email         string
	role          string
	password      string
	passwordStdin bool
}

func (o *operatorOptions) bindPasswordFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.password, "password", "", "operator password")
	cmd.Flags().BoolVar(&o.passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

// hashPassword reads the password from the flag or stdin and hashes it.
func (o *operatorOptions) hashPassword(cmd *cobra.Command) (string, error) {
	password := o.password
	if o.passwordStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", errors.New("a password is required (--password or --password-stdin)")
	}
	return auth.HashPassword(password)
}

func newOperatorCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &operatorOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a console operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorCreate(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "operator email (required)")
	cmd.Flags().StringVar(&opts.role, "role", model.RoleAdmin, "operator role (admin|viewer)")
	opts.bindPasswordFlags(cmd)
	cmd.MarkFlagRequired("email")
	return cmd
}

func runOperatorCreate(cmd *cobra.Command, rootOpts *RootOptions, opts *operatorOptions) error {
	if opts.role != model.RoleAdmin && opts.role != model.RoleViewer {
		return fmt.Errorf("unknown role %q", opts.role)
	}

	hash, err := opts.hashPassword(cmd)
	if err != nil {
		return err
	}

	a, err := loadApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	ops := a.srv.OperatorStore()
	existing, err := ops.GetByEmail(cmd.Context(), opts.email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("operator %s already exists", existing.Email)
	}

	op, err := ops.Create(cmd.Context(), opts.email, hash, opts.role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s operator %s (id %d)\n", op.Role, op.Email, op.ID)
	return nil
}

func newOperatorPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &operatorOptions{}

	cmd := &cobra.Command{
		Use:   "password",
		Short: "Set a console operator's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := opts.hashPassword(cmd)
			if err != nil {
				return err
			}

			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ops := a.srv.OperatorStore()
			op, err := ops.GetByEmail(cmd.Context(), opts.email)
			if err != nil {
				return err
			}
			if op == nil {
				return fmt.Errorf("no operator with email %s", opts.email)
			}
			if err := ops.UpdatePassword(cmd.Context(), op.ID, hash); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", op.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "operator email (required)")
	opts.bindPasswordFlags(cmd)
	cmd.MarkFlagRequired("email")
	return cmd
}
