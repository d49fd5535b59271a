package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/erazemk/buddybuy/internal/itemsync"
	"github.com/erazemk/buddybuy/internal/model"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List items",
	Long:    "List items, newest last. Items not yet confirmed by the server are marked as pending.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := current.requireUser(); err != nil {
			return err
		}
		query, _ := cmd.Flags().GetString("query")
		pendingOnly, _ := cmd.Flags().GetBool("pending")

		if !current.waitInitialSync(cmd.Context()) {
			color.Yellow("Offline, showing items saved on this device")
		}

		var items []model.Item
		for _, item := range current.engine.Search(query) {
			if pendingOnly && item.Synced() {
				continue
			}
			items = append(items, item)
		}

		if len(items) == 0 {
			fmt.Println("No items found")
			return nil
		}
		for _, item := range items {
			printItemLine(cmd.OutOrStdout(), item)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := current.requireUser(); err != nil {
			return err
		}
		current.waitInitialSync(cmd.Context())

		item, err := findItem(args[0])
		if err != nil {
			return err
		}
		printItem(cmd.OutOrStdout(), item)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := current.requireUser(); err != nil {
			return err
		}

		draft := model.ItemDraft{Title: args[0]}
		draft.Description, _ = cmd.Flags().GetString("description")
		if r, _ := cmd.Flags().GetString("rating"); r != "" {
			rating, err := parseRating(r)
			if err != nil {
				return err
			}
			draft.Rating = rating
		}
		if img, _ := cmd.Flags().GetString("image"); img != "" {
			ref, err := imageRef(img)
			if err != nil {
				return err
			}
			draft.ImageRef = ref
		}

		item, task, err := current.engine.AddItem(cmd.Context(), draft)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s\n", shortID(item.ID))
		reportSync(cmd.Context(), task)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := current.requireUser(); err != nil {
			return err
		}
		current.waitInitialSync(cmd.Context())

		item, err := findItem(args[0])
		if err != nil {
			return err
		}

		var patch model.ItemPatch
		flags := cmd.Flags()
		if flags.Changed("title") {
			title, _ := flags.GetString("title")
			patch.Title = &title
		}
		if flags.Changed("description") {
			desc, _ := flags.GetString("description")
			patch.Description = &desc
		}
		if flags.Changed("rating") {
			r, _ := flags.GetString("rating")
			rating, err := parseRating(r)
			if err != nil {
				return err
			}
			patch.Rating = &rating
		}
		if flags.Changed("image") {
			img, _ := flags.GetString("image")
			ref := ""
			if img != "" {
				if ref, err = imageRef(img); err != nil {
					return err
				}
			}
			patch.ImageRef = &ref
		}
		if patch.Empty() {
			return fmt.Errorf("nothing to change, use --title, --description, --rating or --image")
		}

		task, err := current.engine.UpdateItem(cmd.Context(), item.ID, patch)
		if task == nil {
			return err
		}
		if err != nil {
			color.Yellow("Changed, but saving on this device failed: %v", err)
		} else {
			fmt.Printf("Changed %s\n", shortID(item.ID))
		}
		reportSync(cmd.Context(), task)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := current.requireUser(); err != nil {
			return err
		}
		current.waitInitialSync(cmd.Context())

		item, err := findItem(args[0])
		if err != nil {
			return err
		}

		task, err := current.engine.DeleteItem(cmd.Context(), item.ID)
		if task == nil {
			return err
		}
		if err != nil {
			color.Yellow("Deleted, but saving on this device failed: %v", err)
		} else {
			fmt.Printf("Deleted %q\n", item.Title)
		}
		reportSync(cmd.Context(), task)
		return nil
	},
}

// reportSync waits for a propagation task and tells whether the change
// reached the server.
func reportSync(ctx context.Context, task *itemsync.Task) {
	if err := waitTask(ctx, task); err != nil {
		current.logger.Debug("propagation pending", "error", err)
		color.Yellow("Saved on this device, it will sync with 'buddybuy sync'")
		return
	}
	color.Green("Synced")
}

// findItem looks an item up by its full id, including a local id the item
// had before it was synced, or by a unique id prefix.
func findItem(arg string) (model.Item, error) {
	if item, ok := current.engine.Item(arg); ok {
		return item, nil
	}
	return resolveItem(current.engine.Snapshot().Items, arg)
}

// imageRef validates a photo path and returns its absolute file reference.
func imageRef(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("image: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("image: %s is a directory", path)
	}
	return "file://" + abs, nil
}

func init() {
	listCmd.Flags().StringP("query", "q", "", "only items whose title or description contains this text")
	listCmd.Flags().Bool("pending", false, "only items not yet synced")

	for _, cmd := range []*cobra.Command{addCmd, editCmd} {
		cmd.Flags().StringP("description", "d", "", "description")
		cmd.Flags().StringP("rating", "r", "", "rating: none, bad, neutral or good (or 0-3)")
		cmd.Flags().StringP("image", "i", "", "path to a photo")
	}
	editCmd.Flags().StringP("title", "t", "", "new title")

	rootCmd.AddCommand(listCmd, showCmd, addCmd, editCmd, deleteCmd)
}
