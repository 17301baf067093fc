package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuanying/duallit/internal/book"
	"github.com/yuanying/duallit/internal/bookerr"
	"github.com/yuanying/duallit/internal/converter"
	"github.com/yuanying/duallit/internal/covergen"
)

// newGetInfoCmd implements spec.md §6's "get-info [-title|-author|-isbn|
// -publisher]": with no flag, prints every known attribute; with a flag,
// prints only that one value, bare, to ease shell scripting.
func newGetInfoCmd(opts *globalOptions) *cobra.Command {
	var title, author, isbn, publisher bool
	cmd := &cobra.Command{
		Use:   "get-info",
		Short: "Print book metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBook(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			switch {
			case title:
				fmt.Println(b.Title)
			case author:
				fmt.Println(b.Creator)
			case isbn:
				fmt.Println(b.Identifier)
			case publisher:
				fmt.Println(b.Publisher)
			default:
				fmt.Printf("Title:      %s\n", b.Title)
				fmt.Printf("Identifier: %s\n", b.Identifier)
				fmt.Printf("Creator:    %s\n", b.Creator)
				fmt.Printf("Publisher:  %s\n", b.Publisher)
				fmt.Printf("Date:       %s\n", b.Date)
				fmt.Printf("Subject:    %s\n", b.Subject)
				fmt.Printf("Chapters:   %d\n", len(b.Chapters))
				fmt.Printf("Assets:     %d\n", len(b.Assets))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&title, "title", false, "Print only the title")
	cmd.Flags().BoolVar(&author, "author", false, "Print only the author")
	cmd.Flags().BoolVar(&isbn, "isbn", false, "Print only the identifier")
	cmd.Flags().BoolVar(&publisher, "publisher", false, "Print only the publisher")
	return cmd
}

// newGetCoverCmd implements spec.md §6's "get-cover PATH...": writes the
// book's cover image to every given path, generating one with internal/
// covergen when the book carries none and --font is given.
func newGetCoverCmd(opts *globalOptions) *cobra.Command {
	var fontPath string
	cmd := &cobra.Command{
		Use:   "get-cover PATH...",
		Short: "Extract (or auto-generate) the book's cover image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBook(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			data, err := coverBytes(b, fontPath)
			if err != nil {
				return err
			}

			for _, path := range args {
				if !confirmOverwrite(opts, path) {
					fmt.Fprintf(os.Stderr, "skipped %s\n", path)
					continue
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return bookerr.Wrap(bookerr.KindIo, "write cover "+path, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fontPath, "font", "", "TTF/OTF font to render an auto-generated cover with, when the book has none")
	return cmd
}

func coverBytes(b *book.Book, fontPath string) ([]byte, error) {
	if b.Cover != nil {
		return b.Cover.Data()
	}
	if fontPath == "" {
		return nil, bookerr.New(bookerr.KindCover, "book has no embedded cover; pass --font to auto-generate one")
	}
	fontTTF, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, bookerr.Wrap(bookerr.KindIo, "read font", err)
	}
	return covergen.Generate(b.Title, fontTTF)
}

// newGetImageCmd implements spec.md §6's "get-image -d DIR [-p PREFIX]
// [-y]": extracts every image asset into DIR.
func newGetImageCmd(opts *globalOptions) *cobra.Command {
	var dir, prefix string
	cmd := &cobra.Command{
		Use:   "get-image",
		Short: "Extract every image asset into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				return bookerr.New(bookerr.KindUnknown, "get-image requires -d DIR")
			}
			b, err := openBook(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return bookerr.Wrap(bookerr.KindIo, "create "+dir, err)
			}

			for _, asset := range b.Assets {
				data, err := asset.Data()
				if err != nil {
					return bookerr.Wrap(bookerr.KindIo, "read asset "+asset.FileName, err)
				}
				out := filepath.Join(dir, prefix+filepath.Base(asset.FileName))
				if !confirmOverwrite(opts, out) {
					fmt.Fprintf(os.Stderr, "skipped %s\n", out)
					continue
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return bookerr.Wrap(bookerr.KindIo, "write "+out, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination directory (required)")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Filename prefix for extracted images")
	return cmd
}

// newGetChapterCmd implements spec.md §6's "get-chapter -c FILENAME...
// [-d DIR] [-b] [-y]": extracts the named chapters' bodies, either into DIR
// or, with -b, concatenated to stdout.
func newGetChapterCmd(opts *globalOptions) *cobra.Command {
	var chapterNames []string
	var dir string
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "get-chapter",
		Short: "Extract one or more chapters by file name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(chapterNames) == 0 {
				return bookerr.New(bookerr.KindUnknown, "get-chapter requires -c FILENAME")
			}
			b, err := openBook(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			wanted := make(map[string]bool, len(chapterNames))
			for _, n := range chapterNames {
				wanted[n] = true
			}

			if !toStdout && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return bookerr.Wrap(bookerr.KindIo, "create "+dir, err)
				}
			}

			found := 0
			for _, ch := range b.Chapters {
				if !wanted[ch.FileName] && !wanted[filepath.Base(ch.FileName)] {
					continue
				}
				found++
				data, err := ch.Data()
				if err != nil {
					return bookerr.Wrap(bookerr.KindIo, "read chapter "+ch.FileName, err)
				}
				if toStdout || dir == "" {
					fmt.Print(string(data))
					continue
				}
				out := filepath.Join(dir, filepath.Base(ch.FileName))
				if !confirmOverwrite(opts, out) {
					fmt.Fprintf(os.Stderr, "skipped %s\n", out)
					continue
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return bookerr.Wrap(bookerr.KindIo, "write "+out, err)
				}
			}
			if found == 0 {
				return bookerr.New(bookerr.KindFileNotFound, "no matching chapters: "+strings.Join(chapterNames, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&chapterNames, "chapter", "c", nil, "Chapter file name(s) to extract (required)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination directory (default: print to stdout)")
	cmd.Flags().BoolVarP(&toStdout, "body", "b", false, "Print chapter bodies to stdout instead of writing files")
	return cmd
}

// newNavCmd implements spec.md §6's "nav [-s]": prints the table of
// contents, indented to show its forest shape unless -s (flat, one node
// per line) is given.
func newNavCmd(opts *globalOptions) *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Print the table of contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBook(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			printNav(b.Nav, 0, flat)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&flat, "short", "s", false, "Print a flat list instead of an indented tree")
	return cmd
}

// newConvertCmd implements spec.md §4.4's MOBI → EPUB converter as an
// ebookctl subcommand: -i PATH must name a MOBI file, and the sole
// positional argument names the EPUB to write.
func newConvertCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert OUTPUT.epub",
		Short: "Convert a MOBI book to EPUB 3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.InputPath == "" {
				return bookerr.New(bookerr.KindFileNotFound, "missing required -i PATH")
			}
			out := args[0]
			if !confirmOverwrite(opts, out) {
				fmt.Fprintf(os.Stderr, "skipped %s\n", out)
				return nil
			}

			var logger *slog.Logger
			if opts.Verbose {
				logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			p := converter.NewMOBIToEPUBPipeline(converter.MOBIToEPUBOptions{
				InputPath:  opts.InputPath,
				OutputPath: out,
				Logger:     logger,
			})
			return p.Convert()
		},
	}
	return cmd
}

func printNav(nodes []*book.Nav, depth int, flat bool) {
	for _, n := range nodes {
		if flat {
			fmt.Printf("%s\t%s\n", n.Title, n.FileName)
		} else {
			fmt.Printf("%s- %s (%s)\n", strings.Repeat("  ", depth), n.Title, n.FileName)
		}
		printNav(n.Children, depth+1, flat)
	}
}
