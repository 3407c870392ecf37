package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"grovli-client/internal/app"
	"grovli-client/internal/config"
	"grovli-client/internal/events"
	"grovli-client/internal/notify"
	"grovli-client/internal/store"
)

func newRootCmd(a *app.App, cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "grovli",
		Short:         "Grovli meal-planning client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newLoginCmd(a),
		newPlanCmd(a),
		newGenerateCmd(a, cfg),
		newWatchCmd(a),
		newCompleteCmd(a),
		newPantryCmd(a),
		newClipCmd(a),
	)
	return root
}

func newLoginCmd(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store the API access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Tokens.SetToken(args[0])
			fmt.Println("Token stored.")
			return nil
		},
	}
}

func newPlanCmd(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show today's meal plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.RestoreSession(ctx); err != nil {
				return err
			}
			if err := a.LoadMealPlan(ctx); err != nil {
				return err
			}

			meals := a.MealPlan.Today()
			if len(meals) == 0 {
				fmt.Println("No meals planned for today.")
				return nil
			}
			for _, meal := range meals {
				mark := " "
				if meal.Completed {
					mark = "x"
				}
				fmt.Printf("[%s] %-10s %s (%v kcal)\n", mark, meal.Type, meal.Title, meal.Nutrition.Calories)
			}
			fmt.Printf("\nCalories: %v / %v (%d%%)\n", a.Calories.Current(), a.Calories.Target(), a.Calories.Percentage())
			return a.SaveSession(ctx)
		},
	}
}

func newGenerateCmd(a *app.App, cfg *config.Config) *cobra.Command {
	var days int
	var usePantry bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Request a new meal plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			req := app.GenerateRequest{Days: days}
			if usePantry {
				if err := a.LoadPantry(ctx); err != nil {
					return err
				}
				req.PantryItems = a.Pantry.Names()
			}

			jobID, err := a.GenerateMealPlan(ctx, req)
			if err != nil {
				return err
			}
			if jobID == "" {
				fmt.Println("Plan generated.")
				return a.SaveSession(ctx)
			}

			fmt.Printf("Generation started (job %s), waiting...\n", jobID)
			return waitForPlan(ctx, a)
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days to plan")
	cmd.Flags().BoolVar(&usePantry, "use-pantry", false, "prefer ingredients already in the pantry")
	return cmd
}

func newWatchCmd(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Wait for an in-flight generation started elsewhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			status, err := a.Watcher.Restore(ctx)
			if err != nil {
				return err
			}
			switch status.State {
			case notify.StateFullyReady:
				fmt.Printf("Plan %s is ready.\n", status.ResultID)
				a.Watcher.MarkViewed(ctx)
				return nil
			case notify.StateGenerating, notify.StateDataReady:
				a.Watcher.Start(ctx, status.JobID)
			default:
				fmt.Println("No generation in progress; listening for notifications.")
			}

			a.StartBackground(ctx)
			return waitForPlan(ctx, a)
		},
	}
}

func waitForPlan(ctx context.Context, a *app.App) error {
	ready, cancelReady := a.Bus.Subscribe(events.TopicPlanReady)
	defer cancelReady()
	failed, cancelFailed := a.Bus.Subscribe(events.TopicGenerationFailed)
	defer cancelFailed()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case event := <-ready:
		if payload, ok := event.Payload.(events.PlanReadyPayload); ok {
			fmt.Printf("Plan %s is ready.\n", payload.ResultID)
		}
		a.Watcher.MarkViewed(ctx)
		return nil
	case <-failed:
		return fmt.Errorf("meal plan generation failed")
	}
}

func newCompleteCmd(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:       "complete <breakfast|lunch|dinner|snack>",
		Short:     "Toggle today's meal completion",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"breakfast", "lunch", "dinner", "snack"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !store.ValidMealType(args[0]) {
				return fmt.Errorf("unknown meal type %q", args[0])
			}

			ctx := cmd.Context()
			if err := a.RestoreSession(ctx); err != nil {
				return err
			}
			if err := a.LoadMealPlan(ctx); err != nil {
				return err
			}

			today := store.FormatDateKey(time.Now())
			value, err := a.ToggleCompletion(ctx, today, store.MealType(args[0]))
			if err != nil {
				return fmt.Errorf("failed to sync completion: %w", err)
			}
			if value {
				fmt.Printf("%s marked as eaten. %v kcal remaining today.\n", args[0], a.Calories.Remaining())
			} else {
				fmt.Printf("%s unmarked.\n", args[0])
			}
			return a.SaveSession(ctx)
		},
	}
}

func newPantryCmd(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pantry",
		Short: "Manage pantry items",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pantry items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.LoadPantry(cmd.Context()); err != nil {
				return err
			}
			items := a.Pantry.Items()
			if len(items) == 0 {
				fmt.Println("Pantry is empty.")
				return nil
			}
			for _, item := range items {
				fmt.Printf("%-20s %g %s\n", item.Name, item.Quantity, item.Unit)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> [quantity]",
		Short: "Add a pantry item",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity := 1.0
			if len(args) == 2 {
				parsed, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				quantity = parsed
			}

			item := store.PantryItem{Name: args[0], Quantity: quantity}
			a.Pantry.Add(item)
			if _, err := a.API.Post(cmd.Context(), "/api/pantry", item); err != nil {
				return fmt.Errorf("failed to sync pantry: %w", err)
			}
			a.Queries.Invalidate("pantry")
			fmt.Printf("Added %s.\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a pantry item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Pantry.Remove(args[0])
			if _, err := a.API.Delete(cmd.Context(), "/api/pantry/"+args[0]); err != nil {
				return fmt.Errorf("failed to sync pantry: %w", err)
			}
			a.Queries.Invalidate("pantry")
			fmt.Println("Removed.")
			return nil
		},
	})

	return cmd
}

func newClipCmd(a *app.App) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "clip <url>",
		Short: "Import a recipe from a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			recipe, err := a.Clipper.Clip(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s\n\nIngredients:\n", recipe.Title)
			for _, ing := range recipe.Ingredients {
				fmt.Printf("  - %s\n", ing)
			}
			fmt.Println("\nSteps:")
			for i, step := range recipe.Steps {
				fmt.Printf("  %d. %s\n", i+1, step)
			}

			if save {
				if err := a.Clipper.Save(ctx, recipe); err != nil {
					return err
				}
				a.Queries.Invalidate("saved-recipes")
				fmt.Println("\nSaved.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "save the recipe to your account")
	return cmd
}
