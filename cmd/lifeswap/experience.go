package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lifeswap/internal/app"
	"lifeswap/internal/domain"
	"lifeswap/internal/engine"
)

func experienceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experience",
		Aliases: []string{"exp"},
		Short:   "Author and browse experiences",
	}
	cmd.AddCommand(experienceImportCmd())
	cmd.AddCommand(experienceValidateCmd())
	cmd.AddCommand(experiencePublishCmd())
	cmd.AddCommand(experienceListCmd())
	cmd.AddCommand(experienceShowCmd())
	return cmd
}

func experienceImportCmd() *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a YAML experience document as a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actor, err := currentUser()
				if err != nil {
					return err
				}
				res, err := ws.Engine.ImportExperience(ctx, data, actor)
				if err != nil {
					return err
				}
				if !publish {
					if viper.GetBool("json") {
						return printJSON(res)
					}
					fmt.Printf("Imported %s (%d scenarios, %d choices) as draft\n", res.Experience.ID, res.Scenarios, res.Choices)
					return printIssues(res.Issues)
				}
				exp, err := ws.Engine.PublishExperience(ctx, res.Experience.ID, actor)
				if err != nil {
					return reportStructural(err)
				}
				return printExperience(exp)
			})
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "publish right after importing")
	return cmd
}

func experienceValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <experience-id>",
		Short: "Check an experience graph without publishing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				err := ws.Engine.ValidateExperience(ctx, args[0])
				if err == nil {
					fmt.Printf("%s is publishable\n", args[0])
					return nil
				}
				return reportStructural(err)
			})
		},
	}
}

func experiencePublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <experience-id>",
		Short: "Validate and publish an experience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actor, err := currentUser()
				if err != nil {
					return err
				}
				exp, err := ws.Engine.PublishExperience(ctx, args[0], actor)
				if err != nil {
					return reportStructural(err)
				}
				return printExperience(exp)
			})
		},
	}
}

func experienceListCmd() *cobra.Command {
	var all bool
	var f engine.CatalogFilters
	var featured string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the published catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch featured {
			case "":
			case "true", "false":
				v := featured == "true"
				f.Featured = &v
			default:
				return fmt.Errorf("--featured must be true or false")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				var items []domain.Experience
				var err error
				if all {
					items, err = ws.Engine.ListAllExperiences(ctx)
				} else {
					items, err = ws.Engine.ListExperiences(ctx, f)
				}
				if err != nil {
					return err
				}
				return printExperiences(items)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include drafts")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.Region, "region", "", "region filter")
	cmd.Flags().StringVar(&f.Difficulty, "difficulty", "", "difficulty filter")
	cmd.Flags().StringVar(&featured, "featured", "", "true or false")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func experienceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <experience-id>",
		Short: "Show an experience and its scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				exp, err := ws.Engine.GetExperience(ctx, args[0], true)
				if err != nil {
					return err
				}
				g, err := ws.Engine.Content.Graph(ctx, exp.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"experience": exp, "scenarios": g.Scenarios()})
				}
				if err := printExperience(exp); err != nil {
					return err
				}
				printScenarioTable(g)
				return nil
			})
		},
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// reportStructural prints every issue before returning the error.
func reportStructural(err error) error {
	var se *domain.StructuralError
	if errors.As(err, &se) && !viper.GetBool("json") {
		_ = printIssues(se.Issues)
	}
	return err
}
