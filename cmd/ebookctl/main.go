// Command ebookctl is the read-oriented counterpart to epub2azw3: it opens
// a MOBI or EPUB file through the unified book.Book model and exposes the
// external interface spec.md §6 describes — info/cover/image/chapter
// extraction and table-of-contents listing — instead of converting
// formats.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/yuanying/duallit/internal/book"
	"github.com/yuanying/duallit/internal/bookerr"
	"github.com/yuanying/duallit/internal/epub"
	"github.com/yuanying/duallit/internal/mobi"
)

// Exit codes per spec.md §6: 0 success, 1 argument error, 2 I/O/parse failure.
const (
	exitOK       = 0
	exitArgError = 1
	exitIOError  = 2
)

// globalOptions mirrors spec.md §6's global CLI surface: -i PATH (required
// unless -h), -y (overwrite without prompt), -l (verbose), -h (help, left
// to cobra's built-in handling).
type globalOptions struct {
	InputPath string
	Overwrite bool
	Verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "ebookctl",
		Short:         "Inspect MOBI/EPUB ebooks and extract their contents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.InputPath, "input", "i", "", "Input ebook path (MOBI or EPUB)")
	cmd.PersistentFlags().BoolVarP(&opts.Overwrite, "yes", "y", false, "Overwrite existing output files without prompting")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "l", false, "Enable verbose logging")

	cmd.AddCommand(
		newGetInfoCmd(opts),
		newGetCoverCmd(opts),
		newGetImageCmd(opts),
		newGetChapterCmd(opts),
		newNavCmd(opts),
		newConvertCmd(opts),
	)
	return cmd
}

// openBook opens opts.InputPath as either a MOBI or an EPUB file, choosing
// by extension alone (".epub"/".EPUB" is EPUB, anything else is read as
// MOBI; the file's content is not sniffed), and mediates it through the
// unified book.Book model so every subcommand shares one read path.
func openBook(opts *globalOptions) (*book.Book, error) {
	if opts.InputPath == "" {
		return nil, bookerr.New(bookerr.KindFileNotFound, "missing required -i PATH")
	}

	if looksLikeEPUB(opts.InputPath) {
		reader, err := epub.Open(opts.InputPath)
		if err != nil {
			return nil, bookerr.Wrap(bookerr.KindIo, "open EPUB", err)
		}
		opfData, err := reader.ReadFile(reader.OPFPath())
		if err != nil {
			reader.Close()
			return nil, bookerr.Wrap(bookerr.KindIo, "read OPF", err)
		}
		opf, err := epub.ParseOPF(opfData, filepath.Dir(reader.OPFPath()))
		if err != nil {
			reader.Close()
			return nil, bookerr.Wrap(bookerr.KindXml, "parse OPF", err)
		}
		ncx, err := epub.LoadNCX(reader, opf)
		if err != nil {
			reader.Close()
			return nil, bookerr.Wrap(bookerr.KindXml, "load NCX", err)
		}
		return book.FromEPUB(reader, opf, ncx)
	}

	doc, err := mobi.Read(opts.InputPath, openFile)
	if err != nil {
		return nil, err
	}
	return book.FromMOBI(doc)
}

func openFile(path string) (io.ReadSeeker, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func looksLikeEPUB(path string) bool {
	ext := filepath.Ext(path)
	return len(ext) > 0 && (ext == ".epub" || ext == ".EPUB")
}

// confirmOverwrite returns true if path doesn't exist, opts.Overwrite is
// set, or the user answers "y" on the controlling terminal, per spec.md
// §6's -y flag.
func confirmOverwrite(opts *globalOptions, path string) bool {
	if opts.Overwrite {
		return true
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s exists, overwrite? [y/N] ", path)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if bookerr.Is(err, bookerr.KindIo) || bookerr.Is(err, bookerr.KindInvalidArchive) ||
			bookerr.Is(err, bookerr.KindUnsupportedArchive) || bookerr.Is(err, bookerr.KindUtf8) ||
			bookerr.Is(err, bookerr.KindXml) {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitIOError)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitArgError)
	}
}
