package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/SacredTexts/huly/internal/model"
)

// LoadMode controls how errors are handled while loading definitions.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// ErrNoDefinitions is returned when the sources declare neither classes
// nor processes.
var ErrNoDefinitions = errors.New("no class or process definitions found")

// Definitions is the compiled content of a definitions directory.
type Definitions struct {
	Classes   []model.Class
	Processes []model.Process
	Warnings  []ReachabilityWarning
	Value     cue.Value // raw CUE value for additional processing
	FileCount int
}

// LoadDir loads every CUE file of dir as one instance and compiles the
// top-level class and process structs.
func LoadDir(dir string, mode LoadMode) (*Definitions, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("definitions directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("scanning %s: %w", dir, err)}
	}
	if len(files) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{errors.New("no CUE instances loaded")}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{formatCUEError(inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	defs, errs := compileValue(value, mode)
	defs.FileCount = len(files)
	return defs, errs
}

// LoadSource compiles definitions held in memory. filename is used in
// error positions only.
func LoadSource(filename, src string, mode LoadMode) (*Definitions, []error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	defs, errs := compileValue(value, mode)
	defs.FileCount = 1
	return defs, errs
}

func compileValue(value cue.Value, mode LoadMode) (*Definitions, []error) {
	defs := &Definitions{Value: value, Warnings: []ReachabilityWarning{}}
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	if classes := value.LookupPath(cue.ParsePath("class")); classes.Exists() {
		iter, err := classes.Fields()
		if err != nil && fail(formatCUEError(err)) {
			return defs, errs
		}
		for iter != nil && iter.Next() {
			c, err := CompileClass(iter.Value())
			if err != nil {
				if fail(withContext(err, "class."+iter.Label())) {
					return defs, errs
				}
				continue
			}
			if verrs := Validate(c); len(verrs) > 0 {
				for _, ve := range verrs {
					if fail(withContext(ve, "class."+iter.Label())) {
						return defs, errs
					}
				}
				continue
			}
			defs.Classes = append(defs.Classes, c)
		}
	}

	if processes := value.LookupPath(cue.ParsePath("process")); processes.Exists() {
		iter, err := processes.Fields()
		if err != nil && fail(formatCUEError(err)) {
			return defs, errs
		}
		for iter != nil && iter.Next() {
			p, err := CompileProcess(iter.Value())
			if err != nil {
				if fail(withContext(err, "process."+iter.Label())) {
					return defs, errs
				}
				continue
			}
			if verrs := Validate(p); len(verrs) > 0 {
				for _, ve := range verrs {
					if fail(withContext(ve, "process."+iter.Label())) {
						return defs, errs
					}
				}
				continue
			}
			defs.Processes = append(defs.Processes, p)
			defs.Warnings = append(defs.Warnings, AnalyzeReachability(p)...)
		}
	}

	if len(defs.Classes) == 0 && len(defs.Processes) == 0 && len(errs) == 0 {
		errs = append(errs, ErrNoDefinitions)
	}
	return defs, errs
}

// withContext prefixes the field of a positional error with the path of
// the definition it was found in.
func withContext(err error, path string) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &CompileError{Field: path + "." + ce.Field, Message: ce.Message, Pos: ce.Pos}
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		ve.Field = path + "." + ve.Field
		return ve
	}
	return fmt.Errorf("%s: %w", path, err)
}

// Install adds the compiled classes to h, parents before children, then
// registers the processes with r.
func (d *Definitions) Install(h *model.Hierarchy, r *model.Registry) error {
	pending := append([]model.Class(nil), d.Classes...)
	for len(pending) > 0 {
		var next []model.Class
		for _, c := range pending {
			if !h.Has(c.Extends) {
				next = append(next, c)
				continue
			}
			if err := h.AddClass(c); err != nil {
				return fmt.Errorf("install class %s: %w", c.ID, err)
			}
		}
		if len(next) == len(pending) {
			// Nothing progressed: the remaining parents are unknown.
			c := next[0]
			return fmt.Errorf("install class %s: %w", c.ID, h.AddClass(c))
		}
		pending = next
	}

	for _, p := range d.Processes {
		if err := r.Register(p); err != nil {
			return fmt.Errorf("install process %s: %w", p.ID, err)
		}
	}
	return nil
}

// FindCUEFiles walks dir and returns every .cue file path.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
