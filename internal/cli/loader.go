package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/scriptd/internal/luaprog"
)

// LoadMode controls how errors are handled while loading scripts.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll compiles every file and collects all errors.
	LoadModeCollectAll
)

// Error code constants, shared by all commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No Lua files found
	ErrCodeCompileFailed = "E004" // Lua compile failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeChunkFailed   = "E006" // Chunk body raised an error
	ErrCodeStoreFailed   = "E007" // Database error
)

// LoadError is a failure tied to one path.
type LoadError struct {
	Code    string
	Message string
	Path    string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadPrograms compiles every .lua file under dir. Programs are named after
// their file, so two files with one base name are rejected.
func LoadPrograms(dir string, mode LoadMode, opts ...luaprog.Option) ([]*luaprog.Program, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scripts directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scripts directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindLuaFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no Lua files found in %s", dir)}}
	}

	var (
		programs []*luaprog.Program
		errs     []error
		seen     = make(map[string]string, len(files))
	)
	for _, path := range files {
		prog, err := luaprog.CompileFile(path, opts...)
		if err == nil {
			if first, dup := seen[prog.Name()]; dup {
				err = fmt.Errorf("script name %q already used by %s", prog.Name(), first)
			}
		}
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeCompileFailed, Message: err.Error(), Path: path})
			if mode == LoadModeFailFast {
				return programs, errs
			}
			continue
		}
		seen[prog.Name()] = path
		programs = append(programs, prog)
	}
	return programs, errs
}

// FindLuaFiles walks dir and returns all .lua paths, sorted.
func FindLuaFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".lua" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
