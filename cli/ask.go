package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/document"
	"github.com/compozy/docqa/engine/knowledge"
	"github.com/compozy/docqa/engine/knowledge/chunk"
)

// answerView wraps a query result for text rendering.
type answerView struct {
	*knowledge.QueryResult
}

func (v answerView) renderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, answerStyle.Render(v.Answer)); err != nil {
		return err
	}
	if len(v.Citations) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	for i, c := range v.Citations {
		source, _ := c.Metadata[chunk.MetaSource].(string)
		fmt.Fprintf(w, "%s %s %s\n",
			labelStyle.Render(fmt.Sprintf("[%d]", i+1)),
			source,
			mutedStyle.Render(fmt.Sprintf("%s score=%.4f", c.ID, c.Score)),
		)
	}
	return nil
}

func questionArg(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// AskCmd answers a question from the chunk store.
func AskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `ask "<question>"`,
		Short: "Answer a question from the stored documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := questionArg(args)
	if question == "" {
		return core.NewError(fmt.Errorf("question is required"), core.ErrCodeValidation, nil)
	}
	cfg, err := configFrom(ctx)
	if err != nil {
		return err
	}
	comps, err := newComponents(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer comps.Close(context.WithoutCancel(ctx))
	res, err := comps.service.Query(ctx, question, cfg.Retrieval.TopK)
	if err != nil {
		return err
	}
	return writeResult(cmd, answerView{res})
}

// ChatCmd answers a question from a single file without storing it.
func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   `chat --file <path> "<question>"`,
		Short: "Answer a question from one document without storing it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runChat,
	}
	cmd.Flags().StringP("file", "f", "", "Document to answer from")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path, err := cmd.Flags().GetString("file")
	if err != nil {
		return fmt.Errorf("failed to get file flag: %w", err)
	}
	cfg, err := configFrom(ctx)
	if err != nil {
		return err
	}
	doc, err := document.Load(ctx, path)
	if err != nil {
		return err
	}
	comps, err := newComponents(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer comps.Close(context.WithoutCancel(ctx))
	res, err := comps.service.Chat(ctx, questionArg(args), doc.Text)
	if err != nil {
		return err
	}
	return writeResult(cmd, answerView{res})
}
