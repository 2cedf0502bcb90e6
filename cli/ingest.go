package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/document"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/ingest"
	"github.com/compozy/docqa/pkg/logger"
)

const metaMIME = "mime"

// ingestReport lists one result per ingested file.
type ingestReport struct {
	Results []*ingest.Result `json:"results"`
}

func (r *ingestReport) renderText(w io.Writer) error {
	for _, res := range r.Results {
		if err := writeField(w, "source", res.Source); err != nil {
			return err
		}
		fmt.Fprintf(w, "  chunks %d, inserted %d, duplicates %d (%s, %d dims)\n",
			res.ChunksTotal, res.ChunksInserted, res.DuplicatesTotal,
			res.EmbeddingModel, res.EmbeddingDimension)
	}
	return nil
}

// IngestCmd stores documents in the chunk store.
func IngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file|glob>...",
		Short: "Chunk, embed, and store documents",
		Long: `Load each file (PDF or text), split it into overlapping token windows,
embed the windows, and insert the ones whose content is not stored yet.
Arguments may be doublestar globs such as "manuals/**/*.pdf".`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	paths, err := expandPaths(args)
	if err != nil {
		return err
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
	report := &ingestReport{Results: make([]*ingest.Result, 0, len(paths))}
	for _, path := range paths {
		res, err := ingestFile(ctx, comps, path)
		if err != nil {
			return err
		}
		report.Results = append(report.Results, res)
	}
	return writeResult(cmd, report)
}

func ingestFile(ctx context.Context, comps *components, path string) (*ingest.Result, error) {
	doc, err := document.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	res, err := comps.service.Ingest(ctx, chunk.Document{
		Source:   doc.Source,
		Text:     doc.Text,
		Metadata: map[string]any{metaMIME: doc.MIME},
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}
	logger.FromContext(ctx).Info(
		"Document ingested",
		"source", doc.Source,
		"chunks", res.ChunksTotal,
		"inserted", res.ChunksInserted,
	)
	return res, nil
}

// expandPaths resolves glob arguments. Literal paths pass through so that
// missing files report a clear validation error from the loader.
func expandPaths(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, arg := range args {
		if _, err := os.Stat(arg); err == nil || !hasMeta(arg) {
			if _, dup := seen[arg]; !dup {
				seen[arg] = struct{}{}
				out = append(out, arg)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, core.NewError(fmt.Errorf("invalid pattern %q: %w", arg, err), core.ErrCodeValidation, nil)
		}
		if len(matches) == 0 {
			return nil, core.NewError(errors.New("no files match "+arg), core.ErrCodeValidation, nil)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

func hasMeta(path string) bool {
	for _, r := range path {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
