package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"

	"github.com/gwillem/roverpanel/pkg/store"
)

type ScenesCommand struct {
	Import  string `long:"import" description:"Import a scene hierarchy CSV (first column is the category)"`
	Set     string `long:"set" description:"Scene name to add or replace"`
	Classes string `long:"classes" description:"Comma separated classes for --set"`
	Model   string `long:"model" description:"Detection model for --set"`
	Lookup  string `long:"lookup" description:"Resolve a scene name the way the controller does"`
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Controller.DB, zerolog.Nop())
}

func tableStyle(row, col int) lipgloss.Style {
	if row == table.HeaderRow {
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	}
	if col == 0 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	}
	return lipgloss.NewStyle().Padding(0, 1)
}

func (c *ScenesCommand) Execute(args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	switch {
	case c.Import != "":
		f, err := os.Open(c.Import)
		if err != nil {
			return fmt.Errorf("open %s: %w", c.Import, err)
		}
		defer f.Close()
		n, err := db.SeedCSV(ctx, f)
		if err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Imported %d scenes", n)))
		return nil

	case c.Set != "":
		var classes []string
		for _, cl := range strings.Split(c.Classes, ",") {
			if cl = strings.TrimSpace(cl); cl != "" {
				classes = append(classes, cl)
			}
		}
		if len(classes) == 0 {
			classes = store.SuggestClasses(c.Set)
		}
		if err := db.UpdateScene(ctx, c.Set, classes, c.Model); err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", c.Set, strings.Join(classes, ", "))
		return nil

	case c.Lookup != "":
		sc, err := db.ContextFor(ctx, c.Lookup)
		if err != nil {
			return err
		}
		fmt.Printf("%s → %s (%s)\n", sc.Scene, strings.Join(sc.Classes, ", "), sc.Model)
		return nil
	}

	scenes, err := db.Scenes(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(scenes))
	for _, sc := range scenes {
		rows = append(rows, []string{sc.SceneName, strings.Join(sc.Classes, ", "), sc.ModelFile})
	}
	fmt.Println(table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Scene", "Classes", "Model").
		Rows(rows...).
		StyleFunc(tableStyle).
		Render())
	return nil
}

type AccessCommand struct {
	Limit int `short:"n" long:"limit" default:"20" description:"Number of entries"`
}

func (c *AccessCommand) Execute(args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.RecentAccess(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.Local().Format(time.DateTime),
			e.Event,
			e.ClientIP,
			e.SessionID,
			e.Details,
		})
	}
	fmt.Println(table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Time", "Event", "Client", "Session", "Details").
		Rows(rows...).
		StyleFunc(tableStyle).
		Render())
	return nil
}
