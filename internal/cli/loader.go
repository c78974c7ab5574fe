package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/SacredTexts/huly/internal/compiler"
	"github.com/SacredTexts/huly/internal/config"
	"github.com/SacredTexts/huly/internal/engine"
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
	"github.com/SacredTexts/huly/internal/workspace"
)

// Error codes shared by every command. Definition validation errors keep
// the E1xx codes of the compiler.
const (
	ErrCodeGeneric     = "E001" // anything else
	ErrCodeNotFound    = "E002" // path or document not found
	ErrCodeNoFiles     = "E003" // no CUE files in the definitions directory
	ErrCodeCUE         = "E004" // CUE syntax or evaluation error
	ErrCodeInstall     = "E005" // definitions conflict with the class hierarchy
	ErrCodeWriteFailed = "E006" // output file could not be written
	ErrCodeBadInput    = "E007" // malformed transaction, result or argument
	ErrCodeRejected    = "E008" // precondition failed, nothing committed
	ErrCodeStore       = "E009" // database error
	ErrCodeUndo        = "E010" // transaction cannot be compensated
	ErrCodeDefinition  = "E011" // class or process definition malformed
)

// LoadError is one definition loading error with its CUE position.
type LoadError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"`
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, 0 when unknown.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// AsLoadError classifies a compiler error.
func AsLoadError(err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: MapFieldToErrorCode(ce.Field), Message: ce.Message, Pos: ce.Pos}
	}
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return &LoadError{Code: ve.Code, Message: fmt.Sprintf("%s: %s", ve.Field, ve.Message)}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, compiler.ErrNoDefinitions):
		return &LoadError{Code: ErrCodeNoFiles, Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// MapFieldToErrorCode maps the field of a CompileError to an error code.
func MapFieldToErrorCode(field string) string {
	if field == "cue" || strings.HasSuffix(field, ".cue") {
		return ErrCodeCUE
	}
	return ErrCodeDefinition
}

// LoadDefinitions compiles the definitions directory, classifying every
// error.
func LoadDefinitions(dir string, mode compiler.LoadMode) (*compiler.Definitions, []*LoadError) {
	defs, errs := compiler.LoadDir(dir, mode)
	if len(errs) == 0 {
		return defs, nil
	}
	out := make([]*LoadError, len(errs))
	for i, err := range errs {
		out[i] = AsLoadError(err)
	}
	if defs == nil {
		if files, err := compiler.FindCUEFiles(dir); err == nil && len(files) == 0 {
			out[0].Code = ErrCodeNoFiles
		}
	}
	return defs, out
}

func (o *RootOptions) config() *config.Config {
	if o.Config == nil {
		return config.Default()
	}
	return o.Config
}

// openWorkspace opens the configured database with the configured
// definitions installed. A missing definitions directory leaves only the
// built-in classes.
func (o *RootOptions) openWorkspace(opts ...engine.GateOption) (*workspace.Workspace, error) {
	cfg := o.config()

	var defs *compiler.Definitions
	if cfg.Definitions != "" {
		if _, err := os.Stat(cfg.Definitions); errors.Is(err, fs.ErrNotExist) {
			slog.Warn("definitions directory not found, using built-in classes only", "dir", cfg.Definitions)
		} else {
			loaded, errs := LoadDefinitions(cfg.Definitions, compiler.LoadModeFailFast)
			if len(errs) > 0 {
				return nil, WrapExitError(ExitCommandError, "load definitions", errs[0])
			}
			defs = loaded
		}
	}

	opts = append([]engine.GateOption{engine.WithBaseClass(cfg.BaseClassRef())}, opts...)
	ws, err := workspace.Open(cfg.Database, defs, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open workspace", err)
	}
	return ws, nil
}

// factory stamps user transactions with the wall clock and UUIDv7 ids.
func (o *RootOptions) factory() *ir.TxFactory {
	return ir.NewTxFactory(ir.Actor(o.Actor), engine.NewWallClock(), engine.UUIDv7Generator{})
}

// errorCode picks the output code of a workspace error.
func errorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var de *model.DefinitionError
	if errors.As(err, &de) {
		return ErrCodeInstall
	}
	return ErrCodeStore
}
