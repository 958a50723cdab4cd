package command

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/principal"
	"github.com/Skotchmaster/academy/internal/service"
)

func userCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User commands",
	}
	cmd.AddCommand(userCreateCommand())
	return cmd
}

func workerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Worker commands",
	}
	cmd.AddCommand(workerCreateCommand())
	return cmd
}

func userCreateCommand() *cobra.Command {
	var (
		email    string
		password string
		roles    []string
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an active user",
		Long: "Creates an active user with the given roles. Without --password the\n" +
			"password is read from the first line of stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (runErr error) {
			pw, err := passwordOrStdin(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeApp(a, &runErr)

			p, err := a.svc.CreateUser(cmd.Context(), service.AccountInput{
				Username: args[0],
				Email:    email,
				Password: pw,
			}, roles...)
			if err != nil {
				return err
			}
			logging.FromContext(cmd.Context()).Info("created user", "name", p.Username, "id", p.ID, "roles", p.Roles)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "password, read from stdin when empty")
	cmd.Flags().StringSliceVar(&roles, "role", []string{principal.RoleUser}, "role to grant, repeatable")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func workerCreateCommand() *cobra.Command {
	var (
		owner    string
		email    string
		password string
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a worker owned by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (runErr error) {
			pw, err := passwordOrStdin(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeApp(a, &runErr)

			p, err := a.svc.CreateWorker(cmd.Context(), owner, service.AccountInput{
				Username: args[0],
				Email:    email,
				Password: pw,
			})
			if err != nil {
				return err
			}
			logging.FromContext(cmd.Context()).Info("created worker", "name", p.Username, "id", p.ID, "owner", owner)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "username of the owning user (required)")
	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "password, read from stdin when empty")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func passwordOrStdin(flag string, in io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("password is required")
	}
	return pw, nil
}
