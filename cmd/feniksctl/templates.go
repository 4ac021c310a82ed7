package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/feniks/backend/internal/admin"
	"github.com/feniks/backend/internal/docx"
	"github.com/feniks/backend/internal/models"
)

func newTemplatesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Manage protocol templates",
	}

	manager := func() (*admin.Manager, error) {
		c, err := root.client()
		if err != nil {
			return nil, err
		}
		return admin.NewManager(c), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			if err := m.Refresh(cmd.Context()); err != nil {
				return err
			}
			return printTemplates(cmd.OutOrStdout(), m.Templates(), m.Stats())
		},
	})

	var name string
	create := &cobra.Command{
		Use:   "create FILE",
		Short: "Upload a new template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			t, err := m.Create(cmd.Context(), name, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q\n", t.ID, t.Name)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", models.DefaultTemplateName, "template name")
	cmd.AddCommand(create)

	var (
		newName string
		file    string
	)
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Rename a template or replace its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			var (
				namePtr *string
				content []byte
			)
			if cmd.Flags().Changed("name") {
				namePtr = &newName
			}
			if file != "" {
				if content, err = os.ReadFile(file); err != nil {
					return err
				}
			}
			if namePtr == nil && content == nil {
				return fmt.Errorf("nothing to update: pass --name or --file")
			}
			t, err := m.Update(cmd.Context(), args[0], namePtr, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s %q\n", t.ID, t.Name)
			return nil
		},
	}
	update.Flags().StringVar(&newName, "name", "", "new template name")
	update.Flags().StringVar(&file, "file", "", "replacement DOCX file")
	cmd.AddCommand(update)

	var yes bool
	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			// Populate the cache so the prompt can show the name.
			_ = m.Refresh(cmd.Context())

			var confirm admin.ConfirmFunc
			if !yes {
				confirm = promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			if err := m.Delete(cmd.Context(), args[0], confirm); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(del)

	cmd.AddCommand(&cobra.Command{
		Use:   "activate ID",
		Short: "Use a template for generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			if err := m.Activate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", args[0])
			return nil
		},
	})

	var (
		save bool
		out  string
	)
	def := &cobra.Command{
		Use:   "default",
		Short: "Write the built-in template, or store it on the server with --save",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				fileName = "protocol_template.docx"
				data     []byte
				err      error
			)
			if root.server != "" {
				c, cerr := root.client()
				if cerr != nil {
					return cerr
				}
				fileName, data, err = c.DefaultTemplate(cmd.Context(), save)
			} else {
				if save {
					return fmt.Errorf("--save requires --server")
				}
				data, err = docx.DefaultTemplate()
			}
			if err != nil {
				return err
			}
			if out == "" {
				out = fileName
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	def.Flags().BoolVar(&save, "save", false, "also store the template on the server")
	def.Flags().StringVarP(&out, "out", "O", "", "output file")
	cmd.AddCommand(def)

	return cmd
}

func printTemplates(w io.Writer, templates []models.Template, stats models.TemplateStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tUPDATED\tACTIVE")
	for _, t := range templates {
		active := ""
		if t.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Name, t.FileSize, t.UpdatedAt.Format("2006-01-02 15:04"), active)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d templates, %d bytes\n", stats.Count, stats.TotalSize)
	return nil
}

func promptConfirm(in io.Reader, out io.Writer) admin.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(t models.Template) bool {
		label := t.ID
		if t.Name != "" {
			label = fmt.Sprintf("%q (%s)", t.Name, t.ID)
		}
		fmt.Fprintf(out, "Delete template %s? [y/N] ", label)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes" || answer == "д" || answer == "да"
	}
}
