package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Bundle bool
}

// LogEntry is one logged mutation.
type LogEntry struct {
	Seq        int64           `json:"seq"`
	Bundle     string          `json:"bundle"`
	ID         string          `json:"id"`
	Kind       ir.TxKind       `json:"kind"`
	Object     ir.Ref          `json:"object"`
	Class      ir.ClassRef     `json:"class"`
	ModifiedBy ir.Actor        `json:"modified_by"`
	ModifiedOn int64           `json:"modified_on"`
	Tx         json.RawMessage `json:"tx"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <document-id | bundle-id>",
		Short: "Show the transaction log of a document or bundle",
		Long: `Show the committed mutations of one document in commit order.

With --bundle the argument is the id of a submitted transaction and every
mutation committed with it is listed: the edit and the process steps it
triggered. The ids shown are the ones rollback accepts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Bundle, "bundle", false, "argument is a bundle id")

	return cmd
}

func runHistory(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	ws, err := opts.openWorkspace()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	defer ws.Close()

	var logged []store.LoggedTx
	if opts.Bundle {
		logged, err = ws.Store.Bundle(cmd.Context(), id)
	} else {
		logged, err = ws.Store.History(cmd.Context(), ir.Ref(id))
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	entries := make([]LogEntry, 0, len(logged))
	for _, lt := range logged {
		e, err := logEntry(lt)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		entries = append(entries, e)
	}

	return f.Success(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintf(w, "No transactions for %s.\n", id)
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "#%d %s %-6s %s %s by %s at %d\n",
				e.Seq, e.ID, e.Kind, e.Class, e.Object, e.ModifiedBy, e.ModifiedOn)
			if opts.Verbose {
				fmt.Fprintf(w, "    %s\n", strings.TrimSpace(string(e.Tx)))
			}
		}
	})
}

func logEntry(lt store.LoggedTx) (LogEntry, error) {
	body, err := ir.EncodeTx(lt.Tx)
	if err != nil {
		return LogEntry{}, err
	}
	meta, subject := lt.Tx.Meta(), lt.Tx.Subject()
	return LogEntry{
		Seq:        lt.Seq,
		Bundle:     lt.BundleID,
		ID:         meta.ID,
		Kind:       lt.Tx.Kind(),
		Object:     subject.ObjectID,
		Class:      subject.ObjectClass,
		ModifiedBy: meta.ModifiedBy,
		ModifiedOn: meta.ModifiedOn,
		Tx:         body,
	}, nil
}
