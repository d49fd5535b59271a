package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/erazemk/buddybuy/internal/model"
)

var ratingNames = map[int]string{
	model.RatingNone:    "none",
	model.RatingBad:     "bad",
	model.RatingNeutral: "neutral",
	model.RatingGood:    "good",
}

// parseRating accepts a rating name or its number.
func parseRating(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range ratingNames {
		if s == name {
			return r, nil
		}
	}
	if r, err := strconv.Atoi(s); err == nil && model.ValidRating(r) {
		return r, nil
	}
	return 0, fmt.Errorf("invalid rating %q, use none, bad, neutral or good", s)
}

func ratingLabel(r int) string {
	switch r {
	case model.RatingGood:
		return color.GreenString("good")
	case model.RatingNeutral:
		return color.YellowString("neutral")
	case model.RatingBad:
		return color.RedString("bad")
	}
	return color.New(color.Faint).Sprint("unrated")
}

// shortID abbreviates an id for display. Local ids keep their prefix so they
// stay recognizable.
func shortID(id string) string {
	prefix := ""
	if model.IsLocalID(id) {
		prefix, id = model.LocalIDPrefix, strings.TrimPrefix(id, model.LocalIDPrefix)
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return prefix + id
}

// resolveItem finds the item whose id starts with prefix.
func resolveItem(items []model.Item, prefix string) (model.Item, error) {
	var matches []model.Item
	for _, item := range items {
		if item.ID == prefix {
			return item, nil
		}
		if strings.HasPrefix(item.ID, prefix) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return model.Item{}, fmt.Errorf("no item with id %q", prefix)
	case 1:
		return matches[0], nil
	}
	return model.Item{}, fmt.Errorf("id %q matches %d items, use more characters", prefix, len(matches))
}

func printItemLine(w io.Writer, item model.Item) {
	faint := color.New(color.Faint).SprintFunc()

	fmt.Fprint(w, faint(shortID(item.ID)), " ")
	if item.Synced() {
		fmt.Fprint(w, "  ")
	} else {
		fmt.Fprint(w, color.YellowString("* "))
	}
	fmt.Fprintf(w, "%s  %s", item.Title, ratingLabel(item.Rating))
	if item.ImageRef != "" {
		fmt.Fprint(w, faint(" [photo]"))
	}
	fmt.Fprintln(w)
}

func printItem(w io.Writer, item model.Item) {
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintln(w, bold(item.Title))
	fmt.Fprintf(w, "  ID:      %s\n", item.ID)
	fmt.Fprintf(w, "  Rating:  %s\n", ratingLabel(item.Rating))
	if item.Description != "" {
		fmt.Fprintf(w, "  About:   %s\n", item.Description)
	}
	if item.ImageRef != "" {
		fmt.Fprintf(w, "  Photo:   %s\n", item.ImageRef)
	}
	fmt.Fprintf(w, "  Added:   %s\n", item.CreatedAt.Local().Format("2006-01-02 15:04"))
	if item.Synced() {
		fmt.Fprintf(w, "  Status:  %s\n", color.GreenString("synced"))
	} else {
		fmt.Fprintf(w, "  Status:  %s\n", color.YellowString("pending"))
	}
}
