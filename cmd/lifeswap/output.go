package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"lifeswap/internal/domain"
	"lifeswap/internal/graph"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printExperience(exp domain.Experience) error {
	if viper.GetBool("json") {
		return printJSON(exp)
	}
	fmt.Printf("%s  %s [%s]\n", exp.ID, exp.Title, exp.Status)
	if exp.Category != "" || exp.Region != "" {
		fmt.Printf("  %s / %s, %s\n", exp.Category, exp.Region, exp.Difficulty)
	}
	fmt.Printf("  scoring: %s\n", exp.ScoringPolicy)
	if exp.PublishedAt != nil {
		fmt.Printf("  published: %s\n", *exp.PublishedAt)
	}
	return nil
}

func printExperiences(items []domain.Experience) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Title", "Category", "Region", "Difficulty", "Status", "Featured"})
	for _, e := range items {
		tw.AppendRow(table.Row{e.ID, e.Title, e.Category, e.Region, e.Difficulty, e.Status, e.Featured})
	}
	tw.Render()
	return nil
}

func printScenarioTable(g *graph.Graph) {
	tw := newTable(table.Row{"Scenario", "Type", "Parent", "Choices", "Terminal"})
	for _, s := range g.Scenarios() {
		tw.AppendRow(table.Row{s.ID, s.Type, deref(s.ParentID), len(g.Choices(s.ID)), g.IsTerminal(s.ID)})
	}
	tw.Render()
}

func printIssues(issues []domain.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	tw := newTable(table.Row{"Issue", "Scenario", "Choice", "Message"})
	for _, is := range issues {
		tw.AppendRow(table.Row{is.Code, is.ScenarioID, is.ChoiceID, is.Message})
	}
	tw.Render()
	return nil
}

func printChoices(choices []domain.Choice) error {
	if viper.GetBool("json") {
		return printJSON(choices)
	}
	tw := newTable(table.Row{"Choice", "Text", "Leads to"})
	for _, c := range choices {
		next := deref(c.NextScenarioID)
		if next == "" {
			next = "(end)"
		}
		tw.AppendRow(table.Row{c.ID, c.Text, next})
	}
	tw.Render()
	return nil
}

func printLedger(l domain.Ledger) error {
	if viper.GetBool("json") {
		return printJSON(l)
	}
	fmt.Printf("Ledger %s  %s on %s\n", l.ID, l.UserID, l.ExperienceID)
	fmt.Printf("  %s at %s: %d points, %d%% complete, %ds, %d steps\n",
		l.Outcome, deref(l.CurrentScenarioID), l.PointsEarned, l.CompletionPercentage, l.TimeSpent, l.StepCount)
	return nil
}

func printLedgers(items []domain.Ledger) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Experience", "Outcome", "Scenario", "Points", "Complete", "Started"})
	for _, l := range items {
		tw.AppendRow(table.Row{l.ID, l.ExperienceID, l.Outcome, deref(l.CurrentScenarioID), l.PointsEarned, fmt.Sprintf("%d%%", l.CompletionPercentage), l.StartedAt})
	}
	tw.Render()
	return nil
}

func printSteps(steps []domain.LedgerStep) {
	if len(steps) == 0 {
		return
	}
	tw := newTable(table.Row{"#", "Choice", "From", "To", "Impact", "Arrival", "Elapsed"})
	for _, s := range steps {
		tw.AppendRow(table.Row{s.Seq, s.ChoiceID, s.FromScenarioID, deref(s.ToScenarioID), s.PointsImpact, s.ArrivalPoints, s.ElapsedSeconds})
	}
	tw.Render()
}

func printEvents(events []domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(events)
	}
	tw := newTable(table.Row{"ID", "TS", "Type", "Experience", "Entity", "Actor"})
	for _, e := range events {
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ExperienceID, e.EntityKind + ":" + e.EntityID, e.ActorID})
	}
	tw.Render()
	return nil
}

func printAPIKeys(keys []domain.APIKey) error {
	if viper.GetBool("json") {
		return printJSON(keys)
	}
	tw := newTable(table.Row{"ID", "Name", "Created"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
	}
	tw.Render()
	return nil
}
