package main

import (
	"fmt"
	"strings"

	"github.com/harunnryd/coachviz/internal/formatter"
	"github.com/harunnryd/coachviz/internal/template"

	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Manage templates",
	Long:    `Manage topic/style templates: metadata, style guide, domain knowledge and reference grids.`,
}

var templateListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		templates, err := newTemplateStore().List(cmd.Context())
		if err != nil {
			return err
		}
		out, err := f.FormatTemplates(templates)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <topic/style>",
	Short: "Show a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store := newTemplateStore()

		tmpl, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := f.FormatTemplate(tmpl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)

		raw, _ := cmd.Flags().GetString("output")
		if format, _ := formatter.ParseOutputFormat(raw); format != formatter.OutputFormatTable {
			return nil
		}

		ref, err := store.ActiveReference(ctx, tmpl.ID)
		if err != nil {
			return err
		}
		if ref != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\nActive reference: %s\n", ref)
		}
		guide, err := store.StyleGuide(ctx, tmpl.ID)
		if err != nil {
			return err
		}
		if guide != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", guide)
		}
		return nil
	},
}

var templateCreateCmd = &cobra.Command{
	Use:   "create <topic/style>",
	Short: "Create a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		audience, _ := cmd.Flags().GetString("audience")
		preferences, _ := cmd.Flags().GetString("preferences")
		aspectRatio, _ := cmd.Flags().GetString("aspect-ratio")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		guidePath, _ := cmd.Flags().GetString("style-guide")
		knowledgePath, _ := cmd.Flags().GetString("knowledge")
		activate, _ := cmd.Flags().GetBool("activate")

		in := template.CreateInput{
			ID:                args[0],
			Name:              name,
			Description:       description,
			Audience:          audience,
			VisualPreferences: preferences,
			AspectRatio:       aspectRatio,
			Tags:              tags,
		}
		var err error
		if guidePath != "" {
			if in.StyleGuide, err = readInput(guidePath); err != nil {
				return err
			}
		}
		if knowledgePath != "" {
			if in.DomainKnowledge, err = readInput(knowledgePath); err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		store := newTemplateStore()
		tmpl, err := store.Create(ctx, in)
		if err != nil {
			return err
		}
		if activate {
			if err := store.SetActive(ctx, tmpl.ID); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created template %s at %s\n", tmpl.ID, tmpl.Dir)
		return nil
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:     "delete <topic/style>",
	Aliases: []string{"rm"},
	Short:   "Delete a template and its references",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newTemplateStore().Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted template %s\n", args[0])
		return nil
	},
}

var templateUseCmd = &cobra.Command{
	Use:   "use <topic/style>",
	Short: "Make a template the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newTemplateStore()
		if err := store.SetActive(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Active template: %s\n", strings.ToLower(args[0]))
		return nil
	},
}

var templateActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Print the active template",
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, err := newTemplateStore().Active(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tmpl.ID)
		return nil
	},
}

var templateKnowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Read or replace a template's domain knowledge",
}

var templateKnowledgeGetCmd = &cobra.Command{
	Use:   "get <topic/style>",
	Short: "Print domain knowledge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := newTemplateStore().DomainKnowledge(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var templateKnowledgeSetCmd = &cobra.Command{
	Use:   "set <topic/style> <file|->",
	Short: "Replace domain knowledge from a file or stdin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args[1])
		if err != nil {
			return err
		}
		if err := newTemplateStore().SetDomainKnowledge(cmd.Context(), args[0], text); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated domain knowledge for %s\n", args[0])
		return nil
	},
}

func init() {
	addOutputFlag(templateListCmd)
	addOutputFlag(templateShowCmd)

	templateCreateCmd.Flags().String("name", "", "display name")
	templateCreateCmd.Flags().String("description", "", "what the template illustrates")
	templateCreateCmd.Flags().String("audience", "", "target audience, e.g. junior, competitive, recreational")
	templateCreateCmd.Flags().String("preferences", "", "visual preferences")
	templateCreateCmd.Flags().String("aspect-ratio", "", "aspect ratio for generated images, e.g. 16:9")
	templateCreateCmd.Flags().StringSlice("tags", nil, "comma-separated tags")
	templateCreateCmd.Flags().String("style-guide", "", "style guide markdown file (- for stdin)")
	templateCreateCmd.Flags().String("knowledge", "", "domain knowledge markdown file (- for stdin)")
	templateCreateCmd.Flags().Bool("activate", false, "make the new template active")

	templateKnowledgeCmd.AddCommand(templateKnowledgeGetCmd)
	templateKnowledgeCmd.AddCommand(templateKnowledgeSetCmd)

	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateShowCmd)
	templateCmd.AddCommand(templateCreateCmd)
	templateCmd.AddCommand(templateDeleteCmd)
	templateCmd.AddCommand(templateUseCmd)
	templateCmd.AddCommand(templateActiveCmd)
	templateCmd.AddCommand(templateKnowledgeCmd)
	rootCmd.AddCommand(templateCmd)
}
