package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/compozy/docqa/engine/document"
	"github.com/compozy/docqa/engine/knowledge"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
)

type schemaView struct {
	*vectordb.SchemaInfo
}

func (v schemaView) renderText(w io.Writer) error {
	fields := []struct {
		label string
		value any
	}{
		{"schema", v.Schema},
		{"table", v.Table},
		{"dimension", v.Dimension},
		{"index", v.Index},
		{"rows", v.Rows},
	}
	for _, f := range fields {
		if err := writeField(w, f.label, f.value); err != nil {
			return err
		}
	}
	return nil
}

// SchemaCmd reconciles the chunk table and prints its layout.
func SchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create or reconcile the chunk table and show its layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			db, store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close(context.WithoutCancel(ctx))
			}()
			info, err := knowledge.DescribeStore(ctx, store)
			if err != nil {
				return err
			}
			return writeResult(cmd, schemaView{info})
		},
	}
}

type extractView struct {
	Source string `json:"source"`
	MIME   string `json:"mime"`
	Text   string `json:"text"`
}

func (v *extractView) renderText(w io.Writer) error {
	_, err := io.WriteString(w, v.Text+"\n")
	return err
}

// ExtractCmd prints the normalized text of a document.
func ExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the normalized text extracted from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := document.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeResult(cmd, &extractView{Source: doc.Source, MIME: doc.MIME, Text: doc.Text})
		},
	}
}
