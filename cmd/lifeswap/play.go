package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lifeswap/internal/app"
)

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Walk an experience as --user",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start <experience-id>",
		Short: "Start or resume a ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				user, err := currentUser()
				if err != nil {
					return err
				}
				l, err := ws.Engine.Start(ctx, user, args[0])
				if err != nil {
					return err
				}
				if err := printLedger(l); err != nil {
					return err
				}
				return showPosition(ctx, ws, l.ID)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "current <ledger-id>",
		Short: "Show the current scenario and available choices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return showPosition(ctx, ws, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "choices <ledger-id>",
		Short: "List choices available now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				choices, err := ws.Engine.ListAvailableChoices(ctx, args[0])
				if err != nil {
					return err
				}
				return printChoices(choices)
			})
		},
	})
	cmd.AddCommand(playChooseCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "complete <ledger-id>",
		Short: "Finish now; away from a terminal scenario this records an exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				l, err := ws.Engine.Complete(ctx, args[0])
				if err != nil {
					return err
				}
				return printLedger(l)
			})
		},
	})
	return cmd
}

func playChooseCmd() *cobra.Command {
	var elapsed int
	cmd := &cobra.Command{
		Use:   "choose <ledger-id> <choice-id>",
		Short: "Take a choice from the current scenario",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				l, err := ws.Engine.SubmitChoice(ctx, args[0], args[1], elapsed)
				if err != nil {
					return err
				}
				if err := printLedger(l); err != nil {
					return err
				}
				if l.IsCompleted || viper.GetBool("json") {
					return nil
				}
				return showPosition(ctx, ws, l.ID)
			})
		},
	}
	cmd.Flags().IntVar(&elapsed, "elapsed", 0, "seconds spent on the scenario")
	return cmd
}

func showPosition(ctx context.Context, ws *app.Workspace, ledgerID string) error {
	s, err := ws.Engine.GetCurrentScenario(ctx, ledgerID)
	if err != nil {
		return err
	}
	choices, err := ws.Engine.ListAvailableChoices(ctx, ledgerID)
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(map[string]any{"scenario": s, "available_choices": choices})
	}
	fmt.Printf("\n%s [%s]\n", s.Title, s.Type)
	if s.Content != "" {
		fmt.Println(s.Content)
	}
	if len(choices) == 0 {
		return nil
	}
	return printChoices(choices)
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect ledgers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <ledger-id>",
		Short: "Show a ledger with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				l, err := ws.Engine.GetLedger(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printLedger(l); err != nil {
					return err
				}
				if !viper.GetBool("json") {
					printSteps(l.Steps)
				}
				return nil
			})
		},
	})
	var completed string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List ledgers of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *bool
			switch completed {
			case "":
			case "true", "false":
				v := completed == "true"
				filter = &v
			default:
				return fmt.Errorf("--completed must be true or false")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				user, err := currentUser()
				if err != nil {
					return err
				}
				items, err := ws.Engine.ListLedgers(ctx, user, filter, limit)
				if err != nil {
					return err
				}
				return printLedgers(items)
			})
		},
	}
	list.Flags().StringVar(&completed, "completed", "", "true or false")
	list.Flags().IntVar(&limit, "limit", 50, "max results")
	cmd.AddCommand(list)
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Empathy points and completions of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				user, err := currentUser()
				if err != nil {
					return err
				}
				stats, err := ws.Engine.UserStats(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("%s: %d empathy points, %d completed, %d exited\n", stats.UserID, stats.EmpathyPoints, stats.ExperiencesCompleted, stats.ExperiencesExited)
				return nil
			})
		},
	}
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --user; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				user, err := currentUser()
				if err != nil {
					return err
				}
				key, secret, err := ws.Engine.CreateAPIKey(ctx, user, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "user_id": key.UserID, "key": secret})
				}
				fmt.Printf("API key %s for %s:\n%s\n", key.ID, key.UserID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				user, err := currentUser()
				if err != nil {
					return err
				}
				keys, err := ws.Engine.ListAPIKeys(ctx, user)
				if err != nil {
					return err
				}
				return printAPIKeys(keys)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key of --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				user, err := currentUser()
				if err != nil {
					return err
				}
				if err := ws.Engine.RevokeAPIKey(ctx, user, args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}
