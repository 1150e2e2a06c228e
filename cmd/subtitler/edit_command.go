package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"subtitler/internal/subtitles"
)

func newEditCommand() *cobra.Command {
	editCmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit or check an SRT file",
		Annotations: map[string]string{
			"skipConfigLoad": "true",
		},
	}

	editCmd.AddCommand(newEditSetCommand())
	editCmd.AddCommand(newEditShiftCommand())
	editCmd.AddCommand(newEditValidateCommand())

	return editCmd
}

func newEditSetCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "set <subtitle.srt> <index> <text>",
		Short: "Replace the text of one block",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveInputFile(args[0], "subtitle")
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("invalid block index %q", args[1])
			}
			doc, err := subtitles.ReadFile(path)
			if err != nil {
				return err
			}
			if err := subtitles.SetText(&doc, index, strings.Join(args[2:], " ")); err != nil {
				return err
			}
			target := editTarget(path, outputPath)
			if err := subtitles.WriteFile(target, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated block %d in %s\n", index, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to this path instead of editing in place")
	return cmd
}

const shiftExample = `  subtitler edit shift movie.srt 2.5
  subtitler edit shift -- movie.srt -1.5`

func newEditShiftCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:     "shift <subtitle.srt> <seconds>",
		Short:   "Shift every block by a signed offset in seconds",
		Example: shiftExample,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveInputFile(args[0], "subtitle")
			if err != nil {
				return err
			}
			offset, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err != nil {
				return fmt.Errorf("invalid offset %q", args[1])
			}
			doc, err := subtitles.ReadFile(path)
			if err != nil {
				return err
			}
			if doc.Len() == 0 {
				return errors.New("subtitle file has no valid blocks")
			}
			target := editTarget(path, outputPath)
			if err := subtitles.WriteFile(target, subtitles.Shift(doc, offset)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shifted %d blocks by %+.3fs in %s\n", doc.Len(), offset, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to this path instead of editing in place")
	return cmd
}

func newEditValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <subtitle.srt>",
		Short: "Report structural problems in an SRT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveInputFile(args[0], "subtitle")
			if err != nil {
				return err
			}
			doc, err := subtitles.ReadFile(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			issues := subtitles.Validate(doc)
			if len(issues) == 0 {
				fmt.Fprintf(out, "%s: %d blocks, no issues\n", path, doc.Len())
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("%s: %d issues found", path, len(issues))
		},
	}
}

func editTarget(path, output string) string {
	if output = strings.TrimSpace(output); output != "" {
		return output
	}
	return path
}
