package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/rconf/internal/docfile"
	"github.com/florianilch/rconf/internal/remoteconfig"
)

func tokenCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print an access token for the Remote Config scope",
		Action: storeAction(environFunc, func(ctx context.Context, cmd *cli.Command, store *remoteconfig.Store) error {
			token, err := store.Token(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, token)
			return err
		}),
	}
}

func getCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "print the current template and its ETag",
		Action: storeAction(environFunc, func(ctx context.Context, cmd *cli.Command, store *remoteconfig.Store) error {
			res, err := store.Read(ctx)
			if err != nil {
				return err
			}
			return writeOutput(cmd, res)
		}),
	}
}

func etagCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "etag",
		Usage: "print the current ETag",
		Action: storeAction(environFunc, func(ctx context.Context, cmd *cli.Command, store *remoteconfig.Store) error {
			version, err := store.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, version)
			return err
		}),
	}
}

func documentCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "document",
		Usage: "print the current template without its ETag",
		Action: storeAction(environFunc, func(ctx context.Context, cmd *cli.Command, store *remoteconfig.Store) error {
			doc, err := store.CurrentDocument(ctx)
			if err != nil {
				return err
			}
			return writeOutput(cmd, doc)
		}),
	}
}

func updateCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "write a template if the server is still at the given ETag",
		UsageText: "rconf update --file template.json --etag ETAG",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagFile,
				Aliases:  []string{"f"},
				Usage:    "template file (JSON or YAML, - for stdin); parameter values must be strings, quote YAML scalars like \"10\"",
				Required: true,
			},
			&cli.StringFlag{
				Name:     flagETag,
				Aliases:  []string{"e"},
				Usage:    "ETag the template was read at",
				Required: true,
			},
		},
		Action: storeAction(environFunc, func(ctx context.Context, cmd *cli.Command, store *remoteconfig.Store) error {
			doc, err := loadTemplate(cmd)
			if err != nil {
				return err
			}

			res, err := store.Update(ctx, doc, cmd.String(flagETag))
			if err != nil {
				if remoteconfig.IsConflict(err) {
					return fmt.Errorf("template changed since %s, read it again and reapply: %w", cmd.String(flagETag), err)
				}
				return err
			}
			return writeOutput(cmd, res)
		}),
	}
}

func forceUpdateCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:      "force-update",
		Usage:     "write a template unconditionally, discarding concurrent changes",
		UsageText: "rconf force-update --file template.json [--yes]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagFile,
				Aliases:  []string{"f"},
				Usage:    "template file (JSON or YAML, - for stdin); parameter values must be strings, quote YAML scalars like \"10\"",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    flagYes,
				Aliases: []string{"y"},
				Usage:   "skip the confirmation prompt",
			},
		},
		Action: storeAction(environFunc, func(ctx context.Context, cmd *cli.Command, store *remoteconfig.Store) error {
			doc, err := loadTemplate(cmd)
			if err != nil {
				return err
			}

			if !cmd.Bool(flagYes) {
				if err := confirm(cmd, fmt.Sprintf("Overwrite %s regardless of concurrent changes?", store.Endpoint())); err != nil {
					return err
				}
			}

			res, err := store.ForceUpdate(ctx, doc)
			if err != nil {
				return err
			}
			return writeOutput(cmd, res)
		}),
	}
}

var errNotConfirmed = errors.New("force-update not confirmed")

// confirm asks a yes/no question on an interactive terminal. Non-interactive input never
// confirms; pass --yes instead.
func confirm(cmd *cli.Command, question string) error {
	in, ok := cmd.Root().Reader.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return fmt.Errorf("%w: stdin is not a terminal, pass --%s", errNotConfirmed, flagYes)
	}

	if _, err := fmt.Fprintf(cmd.Root().ErrWriter, "%s [y/N] ", question); err != nil {
		return err
	}

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return errNotConfirmed
	}
}

// loadTemplate reads the --file template; "-" reads from the command's input.
func loadTemplate(cmd *cli.Command) (remoteconfig.Document, error) {
	path := cmd.String(flagFile)
	if path != "-" {
		return docfile.Load(path)
	}

	data, err := io.ReadAll(cmd.Root().Reader)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	doc, err := docfile.Decode(data, docfile.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("parsing template from stdin: %w", err)
	}
	return doc, nil
}

// writeOutput renders v per --output. JSON is indented on terminals.
func writeOutput(cmd *cli.Command, v any) error {
	format, err := docfile.ParseFormat(cmd.String(flagOutput))
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	indent := false
	if f, ok := w.(*os.File); ok {
		indent = term.IsTerminal(int(f.Fd()))
	}

	return docfile.Write(w, v, format, indent)
}
